// Package enrollment mirrors the DMS enrollment workflow.
//
// The step is owned by the backend: every ENROLLING_PROCESS_UPDATE carries it
// as the numeric suffix of its status tag, and the machine takes it verbatim.
// Nothing in this package advances the step on its own.
package enrollment

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidStep is returned when a status tag carries no usable step.
var ErrInvalidStep = errors.New("invalid enrollment step")

// Step is the position in the enrollment workflow.
type Step int

// Workflow steps.
const (
	StepIdle        Step = iota // no request
	StepRequested               // CSR received, awaiting enrollment authorization
	StepEnrolling               // request forwarded to the PKI
	StepIssued                  // certificate issued, awaiting transfer authorization
	StepTransferred             // certificate delivered to the device

	maxStep = StepTransferred
)

var stepNames = map[Step]string{
	StepIdle:        "IDLE",
	StepRequested:   "REQUESTED",
	StepEnrolling:   "ENROLLING",
	StepIssued:      "ISSUED",
	StepTransferred: "TRANSFERRED",
}

// String returns the step name.
func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return fmt.Sprintf("STEP(%d)", int(s))
}

// ParseStep extracts the step from a status tag such as "ENROLLING_2" or
// "STEP_3". The number after the last underscore must be in [0,4].
func ParseStep(status string) (Step, error) {
	i := strings.LastIndex(status, "_")
	if i < 0 || i == len(status)-1 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidStep, status)
	}
	n, err := strconv.Atoi(status[i+1:])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidStep, status)
	}
	if n < int(StepIdle) || n > int(maxStep) {
		return 0, fmt.Errorf("%w: %q out of range", ErrInvalidStep, status)
	}
	return Step(n), nil
}

// Process is the enrollment in progress.
type Process struct {
	Step                          Step
	RequestingDate                time.Time
	DeviceModel                   string
	DeviceID                      string
	DeviceSlot                    string
	CertificateRequest            string
	AuthorizedEnrollment          bool
	Certificate                   string
	SerialNumber                  string
	ExpirationDate                time.Time
	AuthorizedCertificateTransfer bool
	IssuingCA                     string
}

// Idle reports whether no enrollment is in progress.
func (p Process) Idle() bool { return p.Step == StepIdle }

// Completed reports whether the certificate reached the device.
func (p Process) Completed() bool { return p.Step == StepTransferred }

// AwaitingEnrollmentAuthorization reports whether the operator must approve
// the request before the backend continues.
func (p Process) AwaitingEnrollmentAuthorization(autoEnroll bool) bool {
	return p.Step == StepRequested && !p.AuthorizedEnrollment && !autoEnroll
}

// AwaitingTransferAuthorization reports whether the operator must approve
// delivering the issued certificate.
func (p Process) AwaitingTransferAuthorization(autoTransfer bool) bool {
	return p.Step == StepIssued && !p.AuthorizedCertificateTransfer && !autoTransfer
}

// AwaitingPKIResponse reports whether the backend is waiting on the PKI with
// no operator prompt pending.
func (p Process) AwaitingPKIResponse(autoEnroll bool) bool {
	return p.Step > StepIdle && p.Step < StepIssued && !p.AwaitingEnrollmentAuthorization(autoEnroll)
}

// CanAuthorizeEnrollment reports whether AUTH_ENROLL is offered. The button
// stays visible for the rest of the workflow when auto enrollment is off.
func (p Process) CanAuthorizeEnrollment(autoEnroll bool) bool {
	return p.Step > StepIdle && !autoEnroll
}

// CanAuthorizeTransfer reports whether AUTH_TRANSFER is offered.
func (p Process) CanAuthorizeTransfer(autoTransfer bool) bool {
	return p.Step > StepEnrolling && !autoTransfer
}

// StageState is the progress of one workflow stage.
type StageState int

const (
	StagePending StageState = iota
	StageActive
	StageDone
)

func (s StageState) String() string {
	switch s {
	case StageActive:
		return "ACTIVE"
	case StageDone:
		return "DONE"
	default:
		return "PENDING"
	}
}

// Stage is one row of the progress view.
type Stage struct {
	Title string
	State StageState
}

// Stages returns the four progress rows for the current step.
func (p Process) Stages() []Stage {
	stage := func(title string, active bool, doneAt Step) Stage {
		switch {
		case p.Step >= doneAt:
			return Stage{Title: title, State: StageDone}
		case active:
			return Stage{Title: title, State: StageActive}
		default:
			return Stage{Title: title, State: StagePending}
		}
	}
	return []Stage{
		stage("Requesting Certificate", p.Step == StepIdle, StepRequested),
		stage("Generating Identity", p.Step == StepRequested && !p.AuthorizedEnrollment, StepEnrolling),
		stage("Receiving Identity from PKI", p.Step == StepEnrolling, StepIssued),
		stage("Transferring Certificate to Device", p.Step == StepIssued && !p.AuthorizedCertificateTransfer, StepTransferred),
	}
}
