package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is used when Topics.Prefix is empty.
const DefaultTopicPrefix = "dealercore"

// SharedSegment stands in for the tenant of entities that have none
// (vehicles, documents, settings).
const SharedSegment = "shared"

// Topics builds dealer-core MQTT topics under a configurable prefix.
//
//	topics := mqtt.Topics{Prefix: "lot42"}
//	topics.Change("user-1", "deal")
//	// Returns: "lot42/changes/user-1/deal"
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return strings.TrimSuffix(t.Prefix, "/")
}

// SystemStatus returns the retained online/offline status topic.
//
// Example: dealercore/system/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", t.prefix())
}

// Change returns the topic a store change is published on. An empty
// tenant maps to SharedSegment.
//
// Example: dealercore/changes/user-1/client
func (t Topics) Change(tenant, entityType string) string {
	if tenant == "" {
		tenant = SharedSegment
	}
	return fmt.Sprintf("%s/changes/%s/%s", t.prefix(), segment(tenant), segment(entityType))
}

// AllChanges returns a pattern matching every change topic.
//
// Pattern: dealercore/changes/#
func (t Topics) AllChanges() string {
	return fmt.Sprintf("%s/changes/#", t.prefix())
}

// TenantChanges returns a pattern matching one tenant's change topics.
//
// Pattern: dealercore/changes/user-1/+
func (t Topics) TenantChanges(tenant string) string {
	if tenant == "" {
		tenant = SharedSegment
	}
	return fmt.Sprintf("%s/changes/%s/+", t.prefix(), segment(tenant))
}

// topicReplacer neutralises characters with meaning in MQTT topic filters.
var topicReplacer = strings.NewReplacer("/", "_", "+", "_", "#", "_")

// segment makes s safe to use as a single topic level.
func segment(s string) string {
	return topicReplacer.Replace(s)
}
