package interactive

import (
	"fmt"
	"strconv"
)

// execDevice runs a device console command. It returns false for unknown
// commands.
func (s *Shell) execDevice(cmd string, args []string) bool {
	switch cmd {
	case "status", "s":
		s.cmdDeviceStatus()
	case "slots":
		snap := s.c.Device().Snapshot()
		writeSlots(s.out, snap.Slots, s.c.SelectedSlot(), s.now())
	case "select":
		s.cmdSelect(args)
	case "gen-id":
		s.report(s.c.GenerateIdentity(), "Identity requested")
	case "add-slot":
		s.report(s.c.AddSlot(), "Slot requested")
	case "enroll":
		s.report(s.c.IssueFirstIdentity(), fmt.Sprintf("Enrollment requested for slot %s", s.c.SelectedSlot()))
	case "reenroll":
		s.report(s.c.RenewIdentity(), fmt.Sprintf("Re-enrollment requested for slot %s", s.c.SelectedSlot()))
	case "mqtt":
		provider := ""
		if len(args) > 0 {
			provider = args[0]
		}
		s.report(s.c.ToggleMQTT(provider), "MQTT toggle sent")
	case "provider":
		if len(args) != 1 {
			fmt.Fprintf(s.out, "Usage: provider <aws|azure> (current: %s)\n", s.c.MQTTProvider())
			return true
		}
		s.report(s.c.SetMQTTProvider(args[0]), fmt.Sprintf("Provider set to %s", args[0]))
	case "rate":
		s.cmdRate(args)
	case "cert":
		s.cmdCert(args)
	case "mqtt-log":
		writeMQTTLog(s.out, s.c.Device().MQTTLog())
	default:
		return false
	}
	return true
}

func (s *Shell) cmdDeviceStatus() {
	snap := s.c.Device().Snapshot()
	writeDeviceStatus(s.out, snap, s.c.SelectedSlot(), s.c.MQTTProvider(), s.c.Countdown().Current())
}

func (s *Shell) cmdSelect(args []string) {
	if len(args) != 1 {
		fmt.Fprintf(s.out, "Usage: select <slot> (current: %s)\n", s.c.SelectedSlot())
		return
	}
	s.report(s.c.SelectSlot(args[0]), fmt.Sprintf("Selected slot %s", args[0]))
}

// cmdCert decodes the certificate of the given slot, or of the selected one.
func (s *Shell) cmdCert(args []string) {
	slotID := s.c.SelectedSlot()
	if len(args) > 0 {
		slotID = args[0]
	}
	sel := s.c.Device().Snapshot().Selected(slotID)
	if len(sel) != 1 {
		fmt.Fprintf(s.out, "Unknown slot: %s\n", slotID)
		return
	}
	writeCertificate(s.out, sel[0], s.now())
}

func (s *Shell) cmdRate(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "Usage: rate <seconds>")
		return
	}
	seconds, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(s.out, "Invalid rate: %s\n", args[0])
		return
	}
	s.report(s.c.ChangeTelemetryRate(seconds), fmt.Sprintf("Telemetry rate change to %ds sent", seconds))
}
