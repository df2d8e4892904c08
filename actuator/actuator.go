package actuator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/janneh/batteryctl-go/config"
	"github.com/janneh/batteryctl-go/optimize"
	"github.com/janneh/batteryctl-go/types"
)

type OnControlResponse func(msg *ControlResponseMessage)

// ControlResponseMessage is the inverter bridge's ack/nak for a control
// request we sent earlier.
type ControlResponseMessage struct {
	TransId string `json:"transId"`
	Status  string `json:"status"` // "ack" or "nak"
	Message string `json:"message,omitempty"`
}

type pendingRequest struct {
	TransId string
	Payload string
	SentAt  time.Time
	DoneCh  chan struct{}
}

var topics = map[string]byte{
	"battery/control/response": 0,
	"battery/control/event":    0,
}

// InverterBridge drives the battery inverter over MQTT. Control requests
// carry a transaction id; the bridge tracks them until the inverter acks,
// naks, or the request is purged as stale.
type InverterBridge struct {
	mqttClient        mqtt.Client
	logger            *slog.Logger
	logic             config.AppConfigLogic
	battery           config.AppConfigBattery
	pending           map[string]pendingRequest
	pendingMutex      sync.RWMutex
	lastMessageTime   ConcurrentTimer
	stopPurgeCh       chan struct{}
	stopMonitorCh     chan struct{}
	commandMutex      sync.Mutex
	lastStrategy      string
	lastCommandAt     time.Time
	OnControlResponse OnControlResponse
}

func New(cnfg config.AppConfigActuator, logic config.AppConfigLogic, battery config.AppConfigBattery) *InverterBridge {
	logger := slog.Default().With("module", "actuator")
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cnfg.Host, cnfg.Port))
	opts.SetClientID("batteryctl")
	opts.SetUsername(cnfg.Username)
	opts.SetPassword(cnfg.Password)
	opts.SetAutoReconnect(true)
	opts.OnConnect = func(client mqtt.Client) {
		logger.Info("inverter MQTT connected")
	}
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		logger.Warn("inverter MQTT connection lost", slog.Any("error", err))
	}

	mqttLogger := slog.Default().With("module", "mqtt")
	mqtt.CRITICAL = newMqttLogger(mqttLogger, slog.LevelError)
	mqtt.ERROR = newMqttLogger(mqttLogger, slog.LevelError)
	mqtt.WARN = newMqttLogger(mqttLogger, slog.LevelWarn)

	return &InverterBridge{
		mqttClient: mqtt.NewClient(opts),
		logger:     logger,
		logic:      logic,
		battery:    battery,
		pending:    make(map[string]pendingRequest),
	}
}

func (b *InverterBridge) Connect() error {
	b.logger.Debug("connecting inverter MQTT client")

	if token := b.mqttClient.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}

	b.inactivityWatchdog()

	token := b.mqttClient.SubscribeMultiple(topics, func(client mqtt.Client, msg mqtt.Message) {
		b.lastMessageTime.Reset()

		switch msg.Topic() {
		case "battery/control/response":
			var crm ControlResponseMessage
			if err := json.Unmarshal(msg.Payload(), &crm); err != nil {
				b.logger.Error("error when reading control response", slog.Any("error", err))
				return
			}

			func() {
				b.pendingMutex.RLock()
				defer b.pendingMutex.RUnlock()
				if e, exists := b.pending[crm.TransId]; exists {
					duration := time.Since(e.SentAt)
					if crm.Status == "nak" {
						b.logger.Warn("inverter rejected control request",
							slog.String("transId", crm.TransId),
							slog.String("message", crm.Message))
					} else {
						b.logger.Debug("received response for known transaction",
							slog.String("transId", crm.TransId),
							slog.Duration("duration", duration))
					}
					e.DoneCh <- struct{}{}
				} else {
					b.logger.Warn("received response for unknown transaction", slog.String("transId", crm.TransId))
				}

				if b.OnControlResponse != nil {
					b.OnControlResponse(&crm)
				}
			}()

		case "battery/control/event":
			b.logger.Info("received control event", "payload", string(msg.Payload()))

		default:
			b.logger.Warn("unknown topic", "topic", msg.Topic())
		}
	})

	if token.Wait() && token.Error() != nil {
		return token.Error()
	}

	b.startPurgeRoutine()

	return nil
}

func (b *InverterBridge) Disconnect() {
	b.logger.Info("disconnecting inverter mqtt client")
	if b.stopPurgeCh != nil {
		close(b.stopPurgeCh)
		b.stopPurgeCh = nil
	}
	if b.stopMonitorCh != nil {
		close(b.stopMonitorCh)
		b.stopMonitorCh = nil
	}

	keys := make([]string, 0, len(topics))
	for k := range topics {
		keys = append(keys, k)
	}
	token := b.mqttClient.Unsubscribe(keys...)
	token.WaitTimeout(1 * time.Second)
	if token.Error() != nil {
		b.logger.Error("error unsubscribing from topics", slog.Any("error", token.Error()))
	}

	b.mqttClient.Disconnect(250)
}

// ApplyOptimization translates the latest run into an inverter command:
// grid charging in the upcoming slot becomes a forced-charge command toward
// the recommended SOC, anything else reverts the inverter to its own
// self-consumption automatic mode. Commands are rate limited so a run every
// few minutes cannot make the inverter mode flap.
func (b *InverterBridge) ApplyOptimization(ctx context.Context, snapshot *types.SnapshotPayload) error {
	if len(snapshot.OracleEntries) == 0 {
		return fmt.Errorf("no oracle entries to apply")
	}

	strategy := snapshot.OracleEntries[0].Strategy

	b.commandMutex.Lock()
	defer b.commandMutex.Unlock()

	if strategy == b.lastStrategy {
		b.logger.Debug("inverter already in requested mode", slog.String("strategy", strategy))
		return nil
	}
	minHold := time.Duration(b.logic.MinHoldMinutes) * time.Minute
	if !b.lastCommandAt.IsZero() && time.Since(b.lastCommandAt) < minHold {
		b.logger.Debug("holding previous inverter command",
			slog.String("strategy", b.lastStrategy),
			slog.Duration("age", time.Since(b.lastCommandAt)))
		return nil
	}

	if b.logic.DryRun {
		b.logger.Info("dry run, skipping inverter command", slog.String("strategy", strategy))
		return nil
	}

	var err error
	if strategy == optimize.StrategyCharge.String() {
		err = b.setBatteryCharge(snapshot.RecommendedSocPercent, b.battery.MaxChargePowerW)
	} else {
		err = b.setBatteryAuto(b.battery.GetAutoModeFloorSoc())
	}
	if err != nil {
		return err
	}

	b.lastStrategy = strategy
	b.lastCommandAt = time.Now()

	return nil
}

func (b *InverterBridge) setBatteryCharge(targetSoc float64, powerW float64) error {
	transId := b.newTransId()
	payload := fmt.Sprintf(`{"transId":"%s","cmd":{"name":"charge","targetSoc":%d,"powerW":%d}}`,
		transId, int(targetSoc), int(powerW))
	b.logger.Info("sending charge command to inverter", "targetSoc", targetSoc, "payload", payload)
	return b.sendControlRequest(transId, payload)
}

func (b *InverterBridge) setBatteryAuto(floorSoc int) error {
	transId := b.newTransId()
	payload := fmt.Sprintf(`{"transId":"%s","cmd":{"name":"auto","floorSoc":%d}}`, transId, floorSoc)
	b.logger.Info("setting inverter battery in auto mode", "payload", payload)
	return b.sendControlRequest(transId, payload)
}

func (b *InverterBridge) newTransId() string {
	return fmt.Sprintf("batteryctl-%d", time.Now().UnixNano())
}

func (b *InverterBridge) sendControlRequest(transId string, payload string) error {
	token := b.mqttClient.Publish("battery/control/request", 0, false, payload)
	ok := token.WaitTimeout(time.Second * 5)
	if !ok {
		return fmt.Errorf("timeout when sending battery control request to inverter")
	}
	if token.Error() != nil {
		return fmt.Errorf("error when sending battery control request to inverter: %w", token.Error())
	}

	doneCh := make(chan struct{})
	func() {
		b.pendingMutex.Lock()
		defer b.pendingMutex.Unlock()
		b.pending[transId] = pendingRequest{
			TransId: transId,
			Payload: payload,
			SentAt:  time.Now(),
			DoneCh:  doneCh,
		}
		b.logger.Debug("successfully sent battery control request to inverter, waiting for ack/nak...")
	}()

	select {
	case <-doneCh:
	case <-time.After(30 * time.Second):
		b.logger.Warn("pending request timed out", slog.String("transId", transId))
	}

	return nil
}

func (b *InverterBridge) startPurgeRoutine() {
	b.stopPurgeCh = make(chan struct{})

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				func() {
					b.pendingMutex.Lock()
					defer b.pendingMutex.Unlock()
					for transId, e := range b.pending {
						duration := time.Since(e.SentAt)
						if duration > time.Minute {
							b.logger.Debug("purging previous request", slog.String("transId", transId), slog.Duration("duration", duration))
							close(e.DoneCh)
							delete(b.pending, transId)
						}
					}
				}()

			case <-b.stopPurgeCh:
				b.logger.Debug("stopping purge routine")
				return
			}
		}
	}()
}

// The inverter bridge publishes a status event at least every few minutes,
// prolonged silence usually means the broker connection is wedged.
func (b *InverterBridge) inactivityWatchdog() {
	trafficOk := true
	maxElapsed := 10 * time.Minute
	b.lastMessageTime.Reset()
	b.stopMonitorCh = make(chan struct{})

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if b.lastMessageTime.Elapsed() >= maxElapsed {
					if trafficOk {
						b.logger.Warn(fmt.Sprintf("no incoming mqtt traffic for the last %.0f minutes", maxElapsed.Minutes()))
						trafficOk = false
					}
				} else {
					if !trafficOk {
						b.logger.Info("mqtt traffic is restored")
						trafficOk = true
					}
				}

			case <-b.stopMonitorCh:
				b.logger.Debug("stopping inverter monitor routine")
				return
			}
		}
	}()
}
