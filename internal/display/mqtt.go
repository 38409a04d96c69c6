package display

import (
	"encoding/json"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"wastesort/internal/logger"
	"wastesort/internal/vision"
)

const publishTimeout = 2 * time.Second

// AdvisoryMessage is published for every non-empty advisory.
type AdvisoryMessage struct {
	Advisory  string    `json:"advisory"`
	Lines     []string  `json:"lines"`
	Timestamp time.Time `json:"timestamp"`
}

// MQTTAdvisorySink publishes advisories to a topic. Frames are not sent.
type MQTTAdvisorySink struct {
	client mqtt.Client
	topic  string
	logger *logger.Logger
}

func NewMQTTAdvisorySink(client mqtt.Client, topic string, logger *logger.Logger) *MQTTAdvisorySink {
	return &MQTTAdvisorySink{client: client, topic: topic, logger: logger}
}

func (s *MQTTAdvisorySink) Present(*vision.Frame) {}

func (s *MQTTAdvisorySink) PresentAdvisory(text string) {
	payload, err := json.Marshal(AdvisoryMessage{
		Advisory:  text,
		Lines:     strings.Split(text, "\n"),
		Timestamp: time.Now(),
	})
	if err != nil {
		s.logger.Error("Failed to marshal advisory: %v", err)
		return
	}

	token := s.client.Publish(s.topic, 0, false, payload)
	// Wait off the loop goroutine
	go func() {
		if !token.WaitTimeout(publishTimeout) {
			s.logger.Warning("Advisory publish to %s timed out", s.topic)
			return
		}
		if err := token.Error(); err != nil {
			s.logger.Warning("Advisory publish to %s failed: %v", s.topic, err)
		}
	}()
}
