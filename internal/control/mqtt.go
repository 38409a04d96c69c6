package control

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"wastesort/internal/logger"
)

// Command is a control message received over MQTT.
type Command struct {
	Command string                 `json:"command"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// Response is published on "<topic>/response" after every command.
type Response struct {
	CommandAck string                 `json:"command_ack"`
	Status     string                 `json:"status"`
	State      *State                 `json:"state,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Timestamp  string                 `json:"timestamp"`
}

// MQTTController applies commands from an MQTT topic to a Cell.
type MQTTController struct {
	client   mqtt.Client
	topic    string
	cell     *Cell
	logger   *logger.Logger
	status   func() map[string]interface{}
	commands chan Command
}

// NewMQTTController creates a controller. status, when not nil, adds the
// session counters to get_status responses.
func NewMQTTController(client mqtt.Client, topic string, cell *Cell, status func() map[string]interface{}, logger *logger.Logger) *MQTTController {
	return &MQTTController{
		client:   client,
		topic:    topic,
		cell:     cell,
		logger:   logger,
		status:   status,
		commands: make(chan Command, 10),
	}
}

// Start subscribes to the control topic and processes commands until ctx
// is cancelled.
func (c *MQTTController) Start(ctx context.Context) error {
	token := c.client.Subscribe(c.topic, 1, c.messageHandler)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("control subscription timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("control subscription failed: %w", err)
	}

	c.logger.Info("Listening for control commands on %s", c.topic)
	go c.processCommands(ctx)
	return nil
}

// Stop unsubscribes from the control topic.
func (c *MQTTController) Stop() {
	if c.client.IsConnected() {
		c.client.Unsubscribe(c.topic).WaitTimeout(2 * time.Second)
	}
}

func (c *MQTTController) messageHandler(_ mqtt.Client, msg mqtt.Message) {
	var cmd Command
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		c.logger.Warning("Failed to parse control command: %v", err)
		c.publish(Response{CommandAck: "unknown", Status: "error", Error: "invalid JSON"})
		return
	}

	select {
	case c.commands <- cmd:
	default:
		c.logger.Warning("Control command queue full, dropping %q", cmd.Command)
	}
}

func (c *MQTTController) processCommands(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-c.commands:
			c.publish(c.Handle(cmd))
		}
	}
}

// Handle applies one command and builds its response.
func (c *MQTTController) Handle(cmd Command) Response {
	resp := Response{CommandAck: cmd.Command, Status: "success"}

	var state State
	switch cmd.Command {
	case "pause":
		state = c.cell.SetMode(Paused)
	case "resume":
		state = c.cell.SetMode(Running)
	case "exit":
		state = c.cell.SetMode(Exiting)
	case "record_on":
		state = c.cell.SetRecording(true)
	case "record_off":
		state = c.cell.SetRecording(false)
	case "toggle_record":
		state = c.cell.ToggleRecording()
	case "set_destination":
		path, ok := cmd.Params["path"].(string)
		if !ok {
			resp.Status = "error"
			resp.Error = "params.path must be a string"
			return resp
		}
		state = c.cell.SetDestination(path)
	case "get_status":
		state = c.cell.Read()
		if c.status != nil {
			resp.Data = c.status()
		}
	default:
		resp.Status = "error"
		resp.Error = fmt.Sprintf("unknown command: %s", cmd.Command)
		return resp
	}

	if cmd.Command != "get_status" {
		c.logger.Info("Control command %s applied over MQTT", cmd.Command)
	}
	resp.State = &state
	return resp
}

func (c *MQTTController) publish(resp Response) {
	resp.Timestamp = time.Now().UTC().Format(time.RFC3339)
	payload, err := json.Marshal(resp)
	if err != nil {
		c.logger.Error("Failed to marshal control response: %v", err)
		return
	}
	token := c.client.Publish(c.topic+"/response", 1, false, payload)
	if !token.WaitTimeout(2*time.Second) || token.Error() != nil {
		c.logger.Warning("Failed to publish control response: %v", token.Error())
	}
}
