package interactive

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/lamassuiot/lamassu-simulation-tools/pkg/cert"
	"github.com/lamassuiot/lamassu-simulation-tools/pkg/countdown"
	"github.com/lamassuiot/lamassu-simulation-tools/pkg/device"
	"github.com/lamassuiot/lamassu-simulation-tools/pkg/dms"
	"github.com/lamassuiot/lamassu-simulation-tools/pkg/enrollment"
	"github.com/lamassuiot/lamassu-simulation-tools/pkg/msglog"
)

// maxBodyWidth bounds the message body shown per log line.
const maxBodyWidth = 96

const timeLayout = "15:04:05"

func writeDeviceStatus(w io.Writer, snap device.Snapshot, selected, provider, expiry string) {
	fmt.Fprintln(w, "\nDevice Status")
	fmt.Fprintln(w, "-------------------------------------------")
	fmt.Fprintf(w, "  Status:         %s\n", snap.Status)
	fmt.Fprintf(w, "  Serial Number:  %s\n", snap.SerialNumber)
	fmt.Fprintf(w, "  Model:          %s\n", snap.Model)
	fmt.Fprintf(w, "  Slots:          %d (selected: %s)\n", len(snap.Slots), selected)
	if expiry != "" {
		fmt.Fprintf(w, "  Expires:        %s\n", expiry)
	}

	mqtt := "disconnected"
	if snap.MQTTConnected {
		mqtt = "connected"
		if snap.MQTTProvider != "" {
			mqtt += " (" + snap.MQTTProvider + ")"
		}
	}
	fmt.Fprintf(w, "  MQTT:           %s\n", mqtt)
	fmt.Fprintf(w, "  Provider:       %s\n", provider)
	if snap.TelemetryRate > 0 {
		fmt.Fprintf(w, "  Telemetry Rate: %ds\n", snap.TelemetryRate)
	}
	fmt.Fprintf(w, "  Temperature:    %s\n", snap.Telemetry.Temperature)
	fmt.Fprintf(w, "  Humidity:       %s\n", snap.Telemetry.Humidity)
	fmt.Fprintf(w, "  Battery:        %s\n", snap.Telemetry.BatteryLevel)
	fmt.Fprintln(w)
}

func writeSlots(w io.Writer, slots []device.Slot, selected string, now time.Time) {
	if len(slots) == 0 {
		fmt.Fprintln(w, "No slots reported")
		return
	}
	fmt.Fprintf(w, "\nSlots (%d):\n", len(slots))
	for _, slot := range slots {
		marker := " "
		if slot.ID == selected {
			marker = "*"
		}
		status := string(slot.Status)
		if slot.Status == device.SlotUnknown && slot.RawStatus != "" {
			status = slot.RawStatus
		}
		if slot.IsPending() {
			status += " ..."
		}
		fmt.Fprintf(w, "  %s %-10s %s\n", marker, slot.ID, status)
		if slot.SerialNumber != "" {
			fmt.Fprintf(w, "      Serial:  %s\n", slot.SerialNumber)
		}
		if slot.IssuingCA != "" {
			fmt.Fprintf(w, "      CA:      %s\n", slot.IssuingCA)
		}
		if exp := countdown.Format(slot.ExpirationDate, now); exp != "" {
			fmt.Fprintf(w, "      Expires: %s\n", exp)
		}
	}
	fmt.Fprintln(w)
}

func writeCertificate(w io.Writer, slot device.Slot, now time.Time) {
	if slot.Certificate == "" {
		fmt.Fprintf(w, "Slot %s holds no certificate\n", slot.ID)
		return
	}
	sum, err := cert.Summarize(slot.Certificate, slot.PrivateKey)
	if err != nil && sum.Subject == "" {
		fmt.Fprintf(w, "Slot %s: %v\n", slot.ID, err)
		return
	}

	fmt.Fprintf(w, "\nCertificate (slot %s)\n", slot.ID)
	fmt.Fprintln(w, "-------------------------------------------")
	fmt.Fprintf(w, "  Subject:        %s\n", sum.Subject)
	fmt.Fprintf(w, "  Issuer:         %s\n", sum.Issuer)
	fmt.Fprintf(w, "  Serial:         %s\n", sum.SerialNumber)
	fmt.Fprintf(w, "  Key:            %s\n", sum.Key)
	fmt.Fprintf(w, "  Not Before:     %s\n", sum.NotBefore.Format(countdown.DateLayout))
	fmt.Fprintf(w, "  Not After:      %s\n", countdown.Format(sum.NotAfter, now))
	if !sum.ValidAt(now) {
		fmt.Fprintln(w, "  Status:         NOT VALID")
	}
	switch {
	case err != nil:
		fmt.Fprintf(w, "  Private Key:    %v\n", err)
	case sum.KeyMatches == nil:
	case *sum.KeyMatches:
		fmt.Fprintln(w, "  Private Key:    matches")
	default:
		fmt.Fprintln(w, "  Private Key:    DOES NOT MATCH")
	}
	fmt.Fprintln(w)
}

func writeMQTTLog(w io.Writer, entries []device.MQTTLogEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "MQTT log is empty")
		return
	}
	for _, e := range entries {
		fmt.Fprintf(w, "  %s [%s] %s: %s\n", e.Timestamp.Format(timeLayout), e.Type, e.Title, e.Message)
	}
}

// writeMessages prints the log newest first. A positive limit keeps only
// the newest limit entries.
func writeMessages(w io.Writer, entries []msglog.Entry, limit int) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No messages")
		return
	}
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	for _, e := range entries {
		typ, body := string(e.Envelope.Type), string(e.Envelope.Message)
		if e.Undecodable() {
			typ, body = "(undecodable)", string(e.Raw)
		}
		fmt.Fprintf(w, "  %s %-3s %-32s %s\n", e.Timestamp.Format(timeLayout), e.Origin, typ, abbreviate(body))
	}
}

func writeProfile(w io.Writer, p dms.Profile, selectedCA string) {
	fmt.Fprintln(w, "\nDMS Profile")
	fmt.Fprintln(w, "-------------------------------------------")
	fmt.Fprintf(w, "  Status:         %s\n", p.Status)
	if !p.Registered() {
		fmt.Fprintln(w, "  Not registered (use: register <user> <pass> <name>)")
		fmt.Fprintln(w)
		return
	}
	fmt.Fprintf(w, "  Name:           %s\n", p.Name)
	fmt.Fprintf(w, "  Enrollment CA:  %s\n", orPlaceholder(selectedCA))
	fmt.Fprintf(w, "  Authorized CAs: %s\n", orPlaceholder(strings.Join(p.AuthorizedCAs, ", ")))
	fmt.Fprintf(w, "  Auto Enroll:    %s\n", onOff(p.AutoEnrollment))
	fmt.Fprintf(w, "  Auto Transfer:  %s\n", onOff(p.AutoCertificateTransfer))
	fmt.Fprintf(w, "  Identities:     %d\n", len(p.EnrolledIdentities))
	fmt.Fprintln(w)
}

func writeCAs(w io.Writer, cas []string, selected string) {
	if len(cas) == 0 {
		fmt.Fprintln(w, "No authorized CAs")
		return
	}
	for _, ca := range cas {
		marker := " "
		if ca == selected {
			marker = "*"
		}
		fmt.Fprintf(w, "  %s %s\n", marker, ca)
	}
}

func writeProcess(w io.Writer, p enrollment.Process, profile dms.Profile) {
	fmt.Fprintf(w, "\nEnrollment Process (%s)\n", p.Step)
	fmt.Fprintln(w, "-------------------------------------------")
	for _, st := range p.Stages() {
		var mark string
		switch st.State {
		case enrollment.StageDone:
			mark = "[x]"
		case enrollment.StageActive:
			mark = "[>]"
		default:
			mark = "[ ]"
		}
		fmt.Fprintf(w, "  %s %s\n", mark, st.Title)
	}

	if !p.Idle() {
		fmt.Fprintf(w, "  Device:         %s (slot %s)\n", orPlaceholder(p.DeviceID), orPlaceholder(p.DeviceSlot))
		if p.DeviceModel != "" {
			fmt.Fprintf(w, "  Model:          %s\n", p.DeviceModel)
		}
		if !p.RequestingDate.IsZero() {
			fmt.Fprintf(w, "  Requested:      %s\n", p.RequestingDate.Format(countdown.DateLayout))
		}
		if p.SerialNumber != "" {
			fmt.Fprintf(w, "  Serial Number:  %s\n", p.SerialNumber)
		}
		if p.IssuingCA != "" {
			fmt.Fprintf(w, "  Issuing CA:     %s\n", p.IssuingCA)
		}
	}

	switch {
	case p.AwaitingEnrollmentAuthorization(profile.AutoEnrollment):
		fmt.Fprintln(w, "  Waiting for enrollment authorization (use: authorize)")
	case p.AwaitingPKIResponse(profile.AutoEnrollment):
		fmt.Fprintln(w, "  Waiting for the PKI")
	case p.AwaitingTransferAuthorization(profile.AutoCertificateTransfer):
		fmt.Fprintln(w, "  Waiting for transfer authorization (use: transfer)")
	case p.Completed():
		fmt.Fprintln(w, "  Certificate transferred")
	}
	fmt.Fprintln(w)
}

func writeIdentities(w io.Writer, ids []dms.Identity) {
	if len(ids) == 0 {
		fmt.Fprintln(w, "No enrolled identities")
		return
	}
	fmt.Fprintf(w, "\nEnrolled Identities (%d):\n", len(ids))
	for _, id := range ids {
		fmt.Fprintf(w, "  %s  %s/%s  serial=%s  ca=%s",
			id.EnrolledAt.Format(countdown.DateLayout), id.DeviceID, id.DeviceSlot, id.SerialNumber, id.IssuingCA)
		if id.IssuingDuration > 0 {
			fmt.Fprintf(w, "  took=%s", id.IssuingDuration)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w)
}

func abbreviate(body string) string {
	if len(body) <= maxBodyWidth {
		return body
	}
	return body[:maxBodyWidth-3] + "..."
}

func orPlaceholder(s string) string {
	if s == "" {
		return device.Placeholder
	}
	return s
}
