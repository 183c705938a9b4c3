package mqttadv

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-fastcon/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-fastcon/internal/mesh/protocol"
)

// Publisher is the MQTT capability the advertiser needs.
// *mqtt.Client satisfies it.
type Publisher interface {
	PublishAsync(topic string, payload []byte, qos byte, retained bool) error
}

// SetMessage is the JSON body published on the set topic.
type SetMessage struct {
	Payload     string    `json:"payload"`
	IntervalMin uint16    `json:"interval_min"`
	IntervalMax uint16    `json:"interval_max"`
	Timestamp   time.Time `json:"timestamp"`
}

// ClearMessage is the JSON body published on the clear topic.
type ClearMessage struct {
	Timestamp time.Time `json:"timestamp"`
}

// Advertiser implements the mesh transport over MQTT.
//
// Thread Safety: All methods are safe for concurrent use.
type Advertiser struct {
	pub      Publisher
	setTopic string
	clrTopic string

	mu     sync.Mutex
	active bool
	now    func() time.Time
}

// New creates an advertiser publishing for the named proxy.
func New(pub Publisher, proxy string) (*Advertiser, error) {
	if proxy == "" {
		return nil, ErrNoProxy
	}
	return &Advertiser{
		pub:      pub,
		setTopic: mqtt.Topics{}.AdvertiserSet(proxy),
		clrTopic: mqtt.Topics{}.AdvertiserClear(proxy),
		now:      time.Now,
	}, nil
}

// SetPayload asks the proxy to advertise adv.
func (a *Advertiser) SetPayload(adv []byte, intervalMin, intervalMax uint16) error {
	if len(adv) > protocol.MaxAdvertisementSize {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(adv))
	}

	body, err := json.Marshal(SetMessage{
		Payload:     hex.EncodeToString(adv),
		IntervalMin: intervalMin,
		IntervalMax: intervalMax,
		Timestamp:   a.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshalling set message: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.pub.PublishAsync(a.setTopic, body, 1, false); err != nil {
		return fmt.Errorf("publishing advertisement: %w", err)
	}
	a.active = true
	return nil
}

// ClearPayload asks the proxy to stop. It is a no-op when nothing was set.
func (a *Advertiser) ClearPayload() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.active {
		return nil
	}

	body, err := json.Marshal(ClearMessage{Timestamp: a.now().UTC()})
	if err != nil {
		return fmt.Errorf("marshalling clear message: %w", err)
	}
	if err := a.pub.PublishAsync(a.clrTopic, body, 1, false); err != nil {
		return fmt.Errorf("publishing clear: %w", err)
	}
	a.active = false
	return nil
}

// Active reports whether a set has been published without a matching clear.
func (a *Advertiser) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}
