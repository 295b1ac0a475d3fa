package models

import (
	"fmt"
	"strings"
)

// SourceID identifies one upstream property data provider
type SourceID string

const (
	SourceCoreLogic     SourceID = "corelogic"
	SourceDomain        SourceID = "domain.com"
	SourceREA           SourceID = "realestate.com"
	SourceMicroburbs    SourceID = "microburbs.com"
	SourcePropertyCom   SourceID = "property.com"
	SourcePropertyValue SourceID = "propertyvalue.com"
)

// Priority is the fixed order in which sources are consulted. The first
// entry is the primary source.
var Priority = []SourceID{
	SourceCoreLogic,
	SourceDomain,
	SourceREA,
	SourceMicroburbs,
	SourcePropertyCom,
	SourcePropertyValue,
}

// ParseSourceID validates a source name
func ParseSourceID(s string) (SourceID, error) {
	id := SourceID(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Priority {
		if id == known {
			return id, nil
		}
	}
	return "", fmt.Errorf("unknown source %q", s)
}

// Rank returns the position of the source in Priority, or -1
func (s SourceID) Rank() int {
	for i, known := range Priority {
		if s == known {
			return i
		}
	}
	return -1
}

func (s SourceID) String() string { return string(s) }
