// discovery.go: Home Assistant MQTT auto-discovery implementation.
// See: https://www.home-assistant.io/integrations/mqtt/#mqtt-discovery
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tphakala/audiorouter/internal/errors"
)

// deviceIDPrefix is the standard prefix for all router device identifiers
const deviceIDPrefix = "audiorouter"

// idSanitizer replaces invalid characters in IDs with underscores.
// Home Assistant requires IDs to contain only [a-zA-Z0-9_-].
var idSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// SanitizeID ensures the ID contains only valid characters for MQTT topics and HA entity IDs.
func SanitizeID(id string) string {
	sanitized := idSanitizer.ReplaceAllString(id, "_")
	for strings.Contains(sanitized, "__") {
		sanitized = strings.ReplaceAll(sanitized, "__", "_")
	}
	sanitized = strings.Trim(sanitized, "_")
	if sanitized == "" {
		sanitized = "unknown"
	}
	return sanitized
}

// DiscoveryPayload represents a Home Assistant MQTT discovery message.
type DiscoveryPayload struct {
	Name                string           `json:"name"`
	UniqueID            string           `json:"unique_id"`
	StateTopic          string           `json:"state_topic"`
	ValueTemplate       string           `json:"value_template,omitempty"`
	JSONAttributesTopic string           `json:"json_attributes_topic,omitempty"`
	DeviceClass         string           `json:"device_class,omitempty"`
	Icon                string           `json:"icon,omitempty"`
	EntityCategory      string           `json:"entity_category,omitempty"`
	PayloadOn           string           `json:"payload_on,omitempty"`
	PayloadOff          string           `json:"payload_off,omitempty"`
	AvailabilityTopic   string           `json:"availability_topic,omitempty"`
	Device              DiscoveryDevice  `json:"device"`
	Origin              *DiscoveryOrigin `json:"origin,omitempty"`
}

// DiscoveryDevice represents the device information in a discovery payload.
type DiscoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

// DiscoveryOrigin provides information about the software creating the discovery message.
type DiscoveryOrigin struct {
	Name      string `json:"name"`
	SWVersion string `json:"sw_version,omitempty"`
}

// DiscoveryConfig holds configuration for generating discovery payloads.
type DiscoveryConfig struct {
	DiscoveryPrefix string // Home Assistant discovery topic prefix (default: homeassistant)
	BaseTopic       string // Base MQTT topic for state messages
	NodeID          string // Node identifier, typically the client ID
	Version         string // Software version
}

// DiscoveryPublisher publishes Home Assistant discovery messages for routes
// and devices.
type DiscoveryPublisher struct {
	client Client
	config DiscoveryConfig
}

// NewDiscoveryPublisher creates a new discovery publisher.
func NewDiscoveryPublisher(client Client, config DiscoveryConfig) *DiscoveryPublisher {
	if config.DiscoveryPrefix == "" {
		config.DiscoveryPrefix = DefaultConfig().DiscoveryPrefix
	}
	return &DiscoveryPublisher{client: client, config: config}
}

// PublishDiscovery publishes the bridge status sensor and one state sensor
// per route and device. It continues past individual failures and returns
// them joined.
func (p *DiscoveryPublisher) PublishDiscovery(ctx context.Context, routes, devices []string) error {
	var errs []error
	if err := p.publish(ctx, p.bridgeTopic(), p.bridgePayload()); err != nil {
		errs = append(errs, err)
	}
	for _, alias := range routes {
		if err := p.publish(ctx, p.sensorTopic("route", alias), p.sensorPayload("route", alias)); err != nil {
			errs = append(errs, err)
		}
	}
	for _, alias := range devices {
		if err := p.publish(ctx, p.sensorTopic("device", alias), p.sensorPayload("device", alias)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RemoveDiscovery publishes empty retained payloads to remove every entry.
func (p *DiscoveryPublisher) RemoveDiscovery(ctx context.Context, routes, devices []string) error {
	var errs []error
	topics := []string{p.bridgeTopic()}
	for _, alias := range routes {
		topics = append(topics, p.sensorTopic("route", alias))
	}
	for _, alias := range devices {
		topics = append(topics, p.sensorTopic("device", alias))
	}
	for _, topic := range topics {
		if err := p.client.PublishWithRetain(ctx, topic, "", true); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *DiscoveryPublisher) bridgePayload() *DiscoveryPayload {
	return &DiscoveryPayload{
		Name:           "Status",
		UniqueID:       p.bridgeID() + "_status",
		StateTopic:     StatusTopic(p.config.BaseTopic),
		DeviceClass:    "connectivity",
		EntityCategory: "diagnostic",
		PayloadOn:      PayloadOnline,
		PayloadOff:     PayloadOffline,
		Device:         p.device(),
		Origin:         p.origin(),
	}
}

// sensorPayload describes a state sensor for a route or device whose value is
// the "state" field of the status JSON.
func (p *DiscoveryPublisher) sensorPayload(kind, alias string) *DiscoveryPayload {
	id := SanitizeID(alias)
	stateTopic := fmt.Sprintf("%s/%s/%s", p.config.BaseTopic, kind, alias)
	icon := "mdi:swap-horizontal"
	if kind == "device" {
		icon = "mdi:audio-input-xlr"
	}
	return &DiscoveryPayload{
		Name:                fmt.Sprintf("%s %s", strings.ToUpper(kind[:1])+kind[1:], alias),
		UniqueID:            fmt.Sprintf("%s_%s_%s", p.bridgeID(), kind, id),
		StateTopic:          stateTopic,
		ValueTemplate:       "{{ value_json.state }}",
		JSONAttributesTopic: stateTopic,
		Icon:                icon,
		AvailabilityTopic:   StatusTopic(p.config.BaseTopic),
		Device:              p.device(),
		Origin:              p.origin(),
	}
}

func (p *DiscoveryPublisher) publish(ctx context.Context, topic string, payload *DiscoveryPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal discovery payload: %w", err)
	}
	// Discovery messages must be retained
	return p.client.PublishWithRetain(ctx, topic, string(data), true)
}

func (p *DiscoveryPublisher) bridgeTopic() string {
	return fmt.Sprintf("%s/binary_sensor/%s/status/config", p.config.DiscoveryPrefix, SanitizeID(p.config.NodeID))
}

func (p *DiscoveryPublisher) sensorTopic(kind, alias string) string {
	nodeID := SanitizeID(p.config.NodeID)
	objectID := fmt.Sprintf("%s_%s_%s", nodeID, kind, SanitizeID(alias))
	return fmt.Sprintf("%s/sensor/%s/%s/config", p.config.DiscoveryPrefix, nodeID, objectID)
}

func (p *DiscoveryPublisher) device() DiscoveryDevice {
	return DiscoveryDevice{
		Identifiers:  []string{p.bridgeID()},
		Name:         "Audio Router " + p.config.NodeID,
		Manufacturer: "audiorouter",
		Model:        "Audio Router",
		SWVersion:    p.config.Version,
	}
}

func (p *DiscoveryPublisher) origin() *DiscoveryOrigin {
	return &DiscoveryOrigin{Name: "audiorouter", SWVersion: p.config.Version}
}

// bridgeID returns the standardized bridge device identifier.
func (p *DiscoveryPublisher) bridgeID() string {
	return fmt.Sprintf("%s_%s", deviceIDPrefix, SanitizeID(p.config.NodeID))
}
