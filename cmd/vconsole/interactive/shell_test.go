package interactive

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lamassuiot/lamassu-simulation-tools/internal/wstest"
	"github.com/lamassuiot/lamassu-simulation-tools/pkg/connection"
	"github.com/lamassuiot/lamassu-simulation-tools/pkg/console"
	"github.com/lamassuiot/lamassu-simulation-tools/pkg/device"
	"github.com/lamassuiot/lamassu-simulation-tools/pkg/dms"
	"github.com/lamassuiot/lamassu-simulation-tools/pkg/enrollment"
	"github.com/lamassuiot/lamassu-simulation-tools/pkg/msglog"
	"github.com/lamassuiot/lamassu-simulation-tools/pkg/wire"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// newShell returns a shell writing to a buffer, backed by a console that is
// connected to a test backend.
func newShell(t *testing.T, role msglog.Role) (*Shell, *bytes.Buffer, *wstest.Conn) {
	t.Helper()
	srv := wstest.NewServer(t)
	c, err := console.New(console.Config{
		Role: role,
		Connection: connection.Config{
			Endpoint:      srv.URL(),
			DrainInterval: 20 * time.Millisecond,
		},
		CountdownInterval: time.Hour,
		Now:               func() time.Time { return base },
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.Start(context.Background()))
	peer := srv.Accept(t, waitFor)

	var buf bytes.Buffer
	return &Shell{c: c, out: &buf, now: func() time.Time { return base }}, &buf, peer
}

func pushDevice(t *testing.T, s *Shell, peer *wstest.Conn, slotStatus string) {
	t.Helper()
	before := s.c.Device().Revision()
	peer.Push(t, wire.TypeDeviceUpdated, map[string]any{
		"status":         "WITH_ID",
		"serial_number":  "SN-0042",
		"model":          "virtual-sensor",
		"mqtt_connected": false,
		"slots": []map[string]any{
			{"id": "default", "status": slotStatus, "expiration_date": "0"},
		},
	})
	require.Eventually(t, func() bool { return s.c.Device().Revision() > before }, waitFor, tick)
}

func TestShellQuit(t *testing.T) {
	s, _, _ := newShell(t, msglog.RoleDevice)
	assert.True(t, s.Execute(context.Background(), "quit"))
	assert.True(t, s.Execute(context.Background(), "  Q  "))
	assert.False(t, s.Execute(context.Background(), ""))
}

func TestShellUnknownCommand(t *testing.T) {
	s, buf, _ := newShell(t, msglog.RoleDevice)
	s.Execute(context.Background(), "register a b c")
	assert.Contains(t, buf.String(), "Unknown command: register")
}

func TestShellDeviceStatus(t *testing.T) {
	s, buf, peer := newShell(t, msglog.RoleDevice)
	pushDevice(t, s, peer, "NEEDS_PROVISIONING")

	s.Execute(context.Background(), "status")
	out := buf.String()
	assert.Contains(t, out, "SN-0042")
	assert.Contains(t, out, "virtual-sensor")
	assert.Contains(t, out, "selected: default")
}

func TestShellEnrollSendsCommand(t *testing.T) {
	s, buf, peer := newShell(t, msglog.RoleDevice)

	s.Execute(context.Background(), "enroll")
	assert.Contains(t, buf.String(), "Error:")

	pushDevice(t, s, peer, "NEEDS_PROVISIONING")
	buf.Reset()
	s.Execute(context.Background(), "enroll")
	assert.Contains(t, buf.String(), "Enrollment requested for slot default")
	assert.Equal(t, wire.TypeEnroll, peer.ReadEnvelope(t, waitFor).Type)
}

func TestShellSelectUnknownSlot(t *testing.T) {
	s, buf, peer := newShell(t, msglog.RoleDevice)
	pushDevice(t, s, peer, "PROVISIONED")

	s.Execute(context.Background(), "select 7")
	assert.Contains(t, buf.String(), "unknown slot")
	assert.Equal(t, console.DefaultSlot, s.c.SelectedSlot())
}

func TestShellRateValidation(t *testing.T) {
	s, buf, peer := newShell(t, msglog.RoleDevice)

	s.Execute(context.Background(), "rate fast")
	assert.Contains(t, buf.String(), "Invalid rate: fast")

	s.Execute(context.Background(), "rate 30")
	env := peer.ReadEnvelope(t, waitFor)
	assert.Equal(t, wire.TypeChangeTelemetryDataRate, env.Type)
}

func TestShellMessagesAndClear(t *testing.T) {
	s, buf, peer := newShell(t, msglog.RoleDevice)
	pushDevice(t, s, peer, "PROVISIONED")

	s.Execute(context.Background(), "messages 1")
	assert.Contains(t, buf.String(), string(wire.TypeDeviceUpdated))

	s.Execute(context.Background(), "clear")
	buf.Reset()
	s.Execute(context.Background(), "messages")
	assert.Contains(t, buf.String(), "No messages")
}

func TestShellDMSCommands(t *testing.T) {
	s, buf, peer := newShell(t, msglog.RoleDMS)
	assert.Equal(t, wire.TypeGetConfig, peer.ReadEnvelope(t, waitFor).Type)

	s.Execute(context.Background(), "authorize")
	assert.Contains(t, buf.String(), "Error:")

	peer.Push(t, wire.TypeDMSUpdate, map[string]any{
		"status":                     "REGISTERED",
		"name":                       "virtual-dms",
		"authorized_cas":             []string{"CA1", "CA2"},
		"selected_ca_for_enrollment": "CA1",
	})
	require.Eventually(t, func() bool { return s.c.DMS().Profile().Registered() }, waitFor, tick)

	buf.Reset()
	s.Execute(context.Background(), "ca")
	assert.Contains(t, buf.String(), "* CA1")

	s.Execute(context.Background(), "ca CA2")
	assert.Equal(t, wire.TypeSelectCAForEnrollment, peer.ReadEnvelope(t, waitFor).Type)

	buf.Reset()
	s.Execute(context.Background(), "auto-enroll maybe")
	assert.Contains(t, buf.String(), "Usage: auto-enroll")

	s.Execute(context.Background(), "auto-enroll on")
	assert.Equal(t, wire.TypeAutoEnrollment, peer.ReadEnvelope(t, waitFor).Type)
}

func TestShellDeviceCommandsUnknownToDMS(t *testing.T) {
	s, buf, _ := newShell(t, msglog.RoleDMS)
	s.Execute(context.Background(), "enroll")
	assert.Contains(t, buf.String(), "Unknown command: enroll")
}

func TestWriteSlots(t *testing.T) {
	var buf bytes.Buffer
	slots := []device.Slot{
		{ID: "default", Status: device.SlotProvisioned, SerialNumber: "11-22", ExpirationDate: base.Add(90 * time.Second)},
		{ID: "1", Status: device.SlotPendingReenrollment},
		{ID: "2", Status: device.SlotUnknown, RawStatus: "REVOKED"},
	}
	writeSlots(&buf, slots, "default", base)

	out := buf.String()
	assert.Contains(t, out, "* default")
	assert.Contains(t, out, "in 2 minutes")
	assert.Contains(t, out, "PENDING_REENROLLMENT ...")
	assert.Contains(t, out, "REVOKED")
}

func TestWriteCertificate(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(0x0a1b2c),
		Subject:      pkix.Name{CommonName: "dev-1"},
		NotBefore:    base.Add(-time.Hour),
		NotAfter:     base.Add(48 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	slot := device.Slot{
		ID:          "default",
		Certificate: string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})),
		PrivateKey:  string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})),
	}

	var buf bytes.Buffer
	writeCertificate(&buf, slot, base)
	out := buf.String()
	assert.Contains(t, out, "CN=dev-1")
	assert.Contains(t, out, "0a:1b:2c")
	assert.Contains(t, out, "ECDSA P-256")
	assert.Contains(t, out, "in 2 days")
	assert.Contains(t, out, "Private Key:    matches")
	assert.NotContains(t, out, "NOT VALID")

	buf.Reset()
	writeCertificate(&buf, device.Slot{ID: "1"}, base)
	assert.Contains(t, buf.String(), "Slot 1 holds no certificate")

	buf.Reset()
	writeCertificate(&buf, device.Slot{ID: "2", Certificate: "garbage!"}, base)
	assert.Contains(t, buf.String(), "Slot 2:")
}

func TestWriteMessagesUndecodable(t *testing.T) {
	var buf bytes.Buffer
	writeMessages(&buf, []msglog.Entry{
		{Origin: wire.OriginIn, Timestamp: base, Raw: []byte(`not json`)},
		{Origin: wire.OriginOut, Timestamp: base, Envelope: wire.Enroll("default")},
	}, 0)

	out := buf.String()
	assert.Contains(t, out, "(undecodable)")
	assert.Contains(t, out, "not json")
	assert.Contains(t, out, "ENROLL")
}

func TestWriteProcess(t *testing.T) {
	var buf bytes.Buffer
	writeProcess(&buf, enrollment.Process{Step: enrollment.StepRequested, DeviceID: "dev-1", DeviceSlot: "default"}, dms.Profile{})

	out := buf.String()
	assert.Contains(t, out, "[x] Requesting Certificate")
	assert.Contains(t, out, "[>] Generating Identity")
	assert.Contains(t, out, "[ ] Receiving Identity from PKI")
	assert.Contains(t, out, "use: authorize")
	assert.Contains(t, out, "dev-1 (slot default)")
}

func TestWriteProfileUnregistered(t *testing.T) {
	var buf bytes.Buffer
	writeProfile(&buf, dms.Profile{Status: dms.StatusEmpty}, "")
	assert.Contains(t, buf.String(), "Not registered")
}

func TestAbbreviate(t *testing.T) {
	long := strings.Repeat("x", maxBodyWidth+10)
	got := abbreviate(long)
	assert.Len(t, got, maxBodyWidth)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, "{}", abbreviate("{}"))
}

func TestParseOnOff(t *testing.T) {
	on, err := parseOnOff([]string{"ON"})
	require.NoError(t, err)
	assert.True(t, on)

	on, err = parseOnOff([]string{"off"})
	require.NoError(t, err)
	assert.False(t, on)

	_, err = parseOnOff(nil)
	assert.Error(t, err)
}

// syncBuffer is a bytes.Buffer safe for concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestPromptFor(t *testing.T) {
	tests := []struct {
		name      string
		role      msglog.Role
		slot      string
		countdown string
		want      string
	}{
		{"dms", msglog.RoleDMS, "default", "03/03/2026 12:00 (in 2 days)", "dms> "},
		{"no certificate", msglog.RoleDevice, "default", "", "device> "},
		{"pending", msglog.RoleDevice, "default", "03/03/2026 12:00 (in 2 days)", "device [default: in 2 days]> "},
		{"expired", msglog.RoleDevice, "slot-1", "26/02/2026 12:00 (3 days ago)", "device [slot-1: 3 days ago]> "},
		{"unparenthesized", msglog.RoleDevice, "default", "soon", "device [default: soon]> "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, promptFor(tt.role, tt.slot, tt.countdown))
		})
	}
}

func TestFollowCountdownUpdatesPrompt(t *testing.T) {
	s, _, peer := newShell(t, msglog.RoleDevice)
	var mu sync.Mutex
	var prompt string
	s.setPrompt = func(p string) {
		mu.Lock()
		defer mu.Unlock()
		prompt = p
	}
	current := func() string {
		mu.Lock()
		defer mu.Unlock()
		return prompt
	}

	cancel := s.followCountdown()
	defer cancel()
	assert.Equal(t, "device> ", current())

	exp := strconv.FormatInt(base.Add(48*time.Hour).Unix(), 10)
	peer.Push(t, wire.TypeDeviceUpdated, map[string]any{
		"status": "WITH_ID",
		"slots": []map[string]any{
			{"id": "default", "status": "ACTIVE", "expiration_date": exp},
		},
	})
	require.Eventually(t, func() bool {
		return strings.HasPrefix(current(), "device [default: in ")
	}, waitFor, tick)

	cancel()
	before := current()
	peer.Push(t, wire.TypeDeviceUpdated, map[string]any{
		"status": "WITH_ID",
		"slots":  []map[string]any{{"id": "default", "status": "ACTIVE", "expiration_date": "0"}},
	})
	require.Eventually(t, func() bool { return s.c.Countdown().Current() == "" }, waitFor, tick)
	assert.Equal(t, before, current())
}

func TestFollowEnrollmentPrintsStepChanges(t *testing.T) {
	s, _, peer := newShell(t, msglog.RoleDMS)
	var out syncBuffer
	s.out = &out

	cancel := s.followEnrollment()
	defer cancel()

	push := func(status string) {
		before := s.c.Enrollment().Revision()
		peer.Push(t, wire.TypeEnrollingProcessUpdate, map[string]any{
			"status":    status,
			"device_id": "dev-1",
		})
		require.Eventually(t, func() bool { return s.c.Enrollment().Revision() > before }, waitFor, tick)
	}

	push("ENROLLING_1")
	push("ENROLLING_1")
	push("ENROLLING_3")

	got := out.String()
	assert.Equal(t, 1, strings.Count(got, "[enrollment] REQUESTED (device dev-1)"))
	assert.Contains(t, got, "[enrollment] ISSUED (device dev-1)")
}
