package interactive

import (
	"fmt"
)

// execDMS runs a DMS console command. It returns false for unknown commands.
func (s *Shell) execDMS(cmd string, args []string) bool {
	switch cmd {
	case "config", "profile":
		writeProfile(s.out, s.c.DMS().Profile(), s.c.SelectedCA())
	case "refresh":
		s.report(s.c.RequestConfig(), "Configuration requested")
	case "register":
		if len(args) != 3 {
			fmt.Fprintln(s.out, "Usage: register <user> <pass> <name>")
			return true
		}
		s.report(s.c.Configure(args[0], args[1], args[2]), "Registration sent")
	case "ca":
		s.cmdCA(args)
	case "auto-enroll":
		on, err := parseOnOff(args)
		if err != nil {
			fmt.Fprintf(s.out, "Usage: auto-enroll on|off (%v)\n", err)
			return true
		}
		s.report(s.c.SetAutoEnrollment(on), fmt.Sprintf("Automatic enrollment %s sent", onOff(on)))
	case "auto-transfer":
		on, err := parseOnOff(args)
		if err != nil {
			fmt.Fprintf(s.out, "Usage: auto-transfer on|off (%v)\n", err)
			return true
		}
		s.report(s.c.SetAutoTransfer(on), fmt.Sprintf("Automatic transfer %s sent", onOff(on)))
	case "process", "p":
		writeProcess(s.out, s.c.Enrollment().Process(), s.c.DMS().Profile())
	case "authorize":
		s.report(s.c.AuthorizeEnrollment(), "Enrollment authorized")
	case "transfer":
		s.report(s.c.AuthorizeTransfer(), "Certificate transfer authorized")
	case "identities", "ids":
		writeIdentities(s.out, s.c.DMS().Profile().EnrolledIdentities)
	default:
		return false
	}
	return true
}

func (s *Shell) cmdCA(args []string) {
	if len(args) == 0 {
		writeCAs(s.out, s.c.DMS().Profile().AuthorizedCAs, s.c.SelectedCA())
		return
	}
	s.report(s.c.ChooseCA(args[0]), fmt.Sprintf("Enrollment CA set to %s", args[0]))
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
