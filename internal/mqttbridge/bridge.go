package mqttbridge

import (
	"encoding/json"
	"fmt"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/nodeflowio/nodeflow/internal/engine"
	"github.com/nodeflowio/nodeflow/internal/events"
	"github.com/nodeflowio/nodeflow/internal/graph"
	"github.com/nodeflowio/nodeflow/internal/nfvalue"
)

// Bridge subscribes one MQTT topic per DeviceTrigger node and drives
// incoming messages into the engine via SetInput.
type Bridge struct {
	client *Client
	eng    *engine.Engine
}

// NewBridge wires client to eng. Call SubscribeAll once client has
// connected: Client.Subscribe waits for the broker to acknowledge each
// topic.
func NewBridge(client *Client, eng *engine.Engine) *Bridge {
	return &Bridge{client: client, eng: eng}
}

// SubscribeAll subscribes one topic per DeviceTrigger node in the loaded
// graph, reading the topic name from that node's "key" parameter (spec
// §6.1's vestigial DeviceTrigger field, repurposed here as the real MQTT
// topic). Nodes whose "key" is absent or empty are skipped.
func (b *Bridge) SubscribeAll() error {
	g := b.eng.Graph()
	for _, n := range g.Nodes {
		if n.Kind != graph.KindDeviceTrigger {
			continue
		}
		if len(n.OutputHandles) == 0 {
			continue
		}
		topic, _ := n.ParametersRaw["key"].(string)
		if topic == "" {
			continue
		}
		portID := g.Ports[n.OutputHandles[0]].PortID
		portType := g.Ports[n.OutputHandles[0]].Type
		if err := b.client.Subscribe(topic, b.handler(n.ID, portID, portType)); err != nil {
			return fmt.Errorf("mqttbridge: subscribe %q for node %q: %w", topic, n.ID, err)
		}
	}
	return nil
}

// handler decodes an incoming message's payload into a Value of portType
// and drives it into the engine as nodeID's output port portID.
func (b *Bridge) handler(nodeID, portID string, portType nfvalue.Kind) paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		v := decodePayload(msg.Payload(), portType)
		if err := b.eng.SetInput(nodeID, portID, v); err != nil {
			events.Emit("error", "input.unknown_node", "mqtt payload could not be applied", map[string]interface{}{
				"node_id": nodeID,
				"port_id": portID,
				"topic":   msg.Topic(),
				"error":   err.Error(),
			})
			return
		}
		events.Emit("info", "input.set", "", map[string]interface{}{
			"node_id": nodeID,
			"port_id": portID,
			"topic":   msg.Topic(),
		})
	}
}

// decodePayload parses an MQTT payload into the given port kind. Numeric
// kinds parse the payload as JSON (accepting bare numbers); string kinds
// take the raw payload bytes as-is. A payload that doesn't parse as the
// target kind yields that kind's zero value.
func decodePayload(payload []byte, kind nfvalue.Kind) nfvalue.Value {
	if kind == nfvalue.String {
		return nfvalue.NewString(string(payload))
	}

	var f float64
	if err := json.Unmarshal(payload, &f); err != nil {
		return nfvalue.Zero(kind)
	}
	return nfvalue.Coerce(nfvalue.NewF64(f), kind)
}
