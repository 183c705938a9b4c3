package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-fastcon/internal/bridges/fastcon"
	"github.com/nerrad567/gray-logic-fastcon/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-fastcon/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-fastcon/internal/mesh/protocol"
)

// consoleSource tags journal rows for commands typed at the console.
const consoleSource = "console"

var (
	errQuit = errors.New("quit")
	errHelp = errors.New("help")
)

const consoleHelp = `Commands:
  pair <id> [group]               pair a light (group defaults to 1)
  reset <id>                      factory reset a light
  on <id> [brightness]            turn on, brightness 0..1
  off <id>                        turn off
  rgb <id> <r> <g> <b> [bright]   set colour, channels 0..1
  temp <id> <mireds> [bright]     set white temperature (153..500)
  clear                           discard pending commands
  help                            show this help
  quit                            leave the console
`

// newConsoleCmd starts an interactive console that sends commands to a
// running bridge over MQTT and prints its acknowledgements and events.
func newConsoleCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Interactive console for a running bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(resolveConfigPath(*configPath))
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return runConsole(cmd.Context(), cfg)
		},
	}
}

func runConsole(ctx context.Context, cfg *config.Config) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "fastcon> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	mqttCfg := cfg.MQTT
	mqttCfg.Broker.ClientID += "-console"
	client, err := mqtt.Connect(mqttCfg)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer client.Close() //nolint:errcheck // Best-effort disconnect on exit

	out := rl.Stdout()
	topics := mqtt.Topics{}
	show := func(_ string, payload []byte) error {
		fmt.Fprintln(out, formatIncoming(payload))
		return nil
	}
	if err := client.Subscribe(topics.BridgeAck(fastcon.ProtocolName, "+"), 1, show); err != nil {
		return fmt.Errorf("subscribing to acks: %w", err)
	}
	if err := client.Subscribe(topics.BridgeEvents(fastcon.ProtocolName), 0, show); err != nil {
		return fmt.Errorf("subscribing to events: %w", err)
	}

	fmt.Fprint(out, consoleHelp)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			// EOF
			return nil
		}

		lightID, msg, err := parseConsoleLine(line, time.Now())
		switch {
		case errors.Is(err, errQuit):
			return nil
		case errors.Is(err, errHelp):
			fmt.Fprint(out, consoleHelp)
			continue
		case err != nil:
			fmt.Fprintln(out, err)
			continue
		case msg == nil:
			continue
		}

		payload, err := json.Marshal(msg)
		if err != nil {
			fmt.Fprintln(out, err)
			continue
		}
		topic := topics.BridgeCommand(fastcon.ProtocolName, strconv.FormatUint(uint64(lightID), 10))
		if err := client.Publish(topic, payload, 1, false); err != nil {
			fmt.Fprintln(out, "publish failed:", err)
		}
	}
}

// parseConsoleLine turns one console line into a command message. It
// returns a nil message for blank lines, errHelp for help and errQuit for
// quit.
func parseConsoleLine(line string, now time.Time) (uint32, *fastcon.CommandMessage, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return 0, nil, nil
	}

	verb := strings.ToLower(fields[0])
	args := fields[1:]

	switch verb {
	case "help", "?":
		return 0, nil, errHelp
	case "quit", "exit", "q":
		return 0, nil, errQuit
	case "clear":
		return 0, newCommandMessage(fastcon.CommandClearQueue, nil, now), nil
	}

	if len(args) == 0 {
		return 0, nil, fmt.Errorf("%s: light id required", verb)
	}
	lightID, err := parseLightID(args[0])
	if err != nil {
		return 0, nil, err
	}
	nums, err := parseFloats(args[1:])
	if err != nil {
		return 0, nil, fmt.Errorf("%s: %w", verb, err)
	}

	switch verb {
	case "pair":
		var params fastcon.PairParameters
		if len(args) > 1 {
			group, err := strconv.ParseUint(args[1], 10, 32)
			if err != nil {
				return 0, nil, fmt.Errorf("pair: invalid group %q", args[1])
			}
			params.GroupID = uint32(group)
		}
		return lightID, newCommandMessage(fastcon.CommandPair, params, now), nil

	case "reset":
		return lightID, newCommandMessage(fastcon.CommandFactoryReset, nil, now), nil

	case "on":
		state := protocol.LightState{On: true, Brightness: optional(nums, 0, 1)}
		return lightID, newCommandMessage(fastcon.CommandSetState, state, now), nil

	case "off":
		return lightID, newCommandMessage(fastcon.CommandSetState, protocol.LightState{}, now), nil

	case "rgb":
		if len(nums) < 3 {
			return 0, nil, errors.New("rgb: want <id> <r> <g> <b> [brightness]")
		}
		state := protocol.LightState{
			On:         true,
			Mode:       protocol.ColorModeRGB,
			Red:        nums[0],
			Green:      nums[1],
			Blue:       nums[2],
			Brightness: optional(nums, 3, 1),
		}
		return lightID, newCommandMessage(fastcon.CommandSetState, state, now), nil

	case "temp":
		if len(nums) < 1 {
			return 0, nil, errors.New("temp: want <id> <mireds> [brightness]")
		}
		state := protocol.LightState{
			On:         true,
			Mode:       protocol.ColorModeTemperature,
			Mireds:     nums[0],
			Brightness: optional(nums, 1, 1),
		}
		return lightID, newCommandMessage(fastcon.CommandSetState, state, now), nil
	}

	return 0, nil, fmt.Errorf("unknown command %q (type help)", verb)
}

func newCommandMessage(command string, params any, now time.Time) *fastcon.CommandMessage {
	msg := &fastcon.CommandMessage{
		ID:        uuid.NewString(),
		Timestamp: now.UTC(),
		Command:   command,
		Source:    consoleSource,
	}
	if params != nil {
		// Parameter types are plain structs; Marshal cannot fail
		raw, _ := json.Marshal(params) //nolint:errcheck
		msg.Parameters = raw
	}
	return msg
}

func parseFloats(args []string) ([]float64, error) {
	nums := make([]float64, 0, len(args))
	for _, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", a)
		}
		nums = append(nums, v)
	}
	return nums, nil
}

func optional(nums []float64, i int, def float64) float64 {
	if i < len(nums) {
		return nums[i]
	}
	return def
}

// formatIncoming renders an ack or event for the console.
func formatIncoming(payload []byte) string {
	var probe struct {
		CommandID string `json:"command_id"`
		Event     string `json:"event"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return string(payload)
	}

	if probe.CommandID != "" {
		var ack fastcon.AckMessage
		if err := json.Unmarshal(payload, &ack); err != nil {
			return string(payload)
		}
		if ack.Error != nil {
			return fmt.Sprintf("ack light=%d %s %s: %s", ack.LightID, ack.Status, ack.Error.Code, ack.Error.Message)
		}
		if ack.Cleared > 0 {
			return fmt.Sprintf("ack %s cleared=%d", ack.Status, ack.Cleared)
		}
		return fmt.Sprintf("ack light=%d %s depth=%d", ack.LightID, ack.Status, ack.QueueDepth)
	}

	var ev fastcon.EventMessage
	if err := json.Unmarshal(payload, &ev); err != nil {
		return string(payload)
	}
	s := fmt.Sprintf("event %s light=%d op=%s", ev.Event, ev.LightID, ev.Opcode)
	if ev.Sequence != nil {
		s += fmt.Sprintf(" seq=%d", *ev.Sequence)
	}
	if ev.DurationMs > 0 {
		s += fmt.Sprintf(" %dms", ev.DurationMs)
	}
	if ev.Error != "" {
		s += " error=" + ev.Error
	}
	return s
}
