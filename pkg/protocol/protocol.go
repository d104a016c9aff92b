// Package protocol defines the command and reply messages exchanged between
// a master and each worker after the worker has announced itself.
//
// Every command is answered by exactly one reply, except Quit, which ends
// the exchange without a reply.
package protocol

import (
	"fmt"

	"github.com/bft-labs/mwdispatch/pkg/blob"
	"github.com/bft-labs/mwdispatch/pkg/cluster"
	"github.com/bft-labs/mwdispatch/pkg/mwerr"
	"github.com/bft-labs/mwdispatch/pkg/step"
)

// Op identifies a command.
type Op int32

const (
	OpInvalid Op = iota
	// OpInit sets the work domain of a worker.
	OpInit
	// OpStep executes one step.
	OpStep
	// OpQuit stops the worker.
	OpQuit
)

func (o Op) String() string {
	switch o {
	case OpInit:
		return "init"
	case OpStep:
		return "step"
	case OpQuit:
		return "quit"
	default:
		return fmt.Sprintf("op(%d)", int32(o))
	}
}

const (
	commandRecord  = "mwcmd"
	replyRecord    = "mwreply"
	messageVersion = 1
)

// Command is a request from the master to one worker.
type Command struct {
	Op Op
	// WorkDomain is set for OpInit.
	WorkDomain cluster.WorkDomainSpec
	// Step is set for OpStep.
	Step *step.Step
}

// InitCommand returns a command setting the work domain.
func InitCommand(wds cluster.WorkDomainSpec) Command {
	return Command{Op: OpInit, WorkDomain: wds}
}

// StepCommand returns a command executing s.
func StepCommand(s *step.Step) Command {
	return Command{Op: OpStep, Step: s}
}

// QuitCommand returns a command stopping the worker.
func QuitCommand() Command {
	return Command{Op: OpQuit}
}

// MarshalCommand encodes c.
func MarshalCommand(c Command) ([]byte, error) {
	w := blob.NewWriter()
	w.PutStart(commandRecord, messageVersion)
	w.PutInt32(int32(c.Op))
	switch c.Op {
	case OpInit:
		c.WorkDomain.Encode(w)
	case OpStep:
		if c.Step == nil {
			return nil, mwerr.Usage("encode command", "", "step command without a step")
		}
		if err := c.Step.Encode(w); err != nil {
			return nil, err
		}
	case OpQuit:
	default:
		return nil, mwerr.Usage("encode command", "", "invalid command %s", c.Op)
	}
	w.PutEnd()
	return w.Finish()
}

// UnmarshalCommand decodes a command, creating steps through reg.
func UnmarshalCommand(buf []byte, reg *step.Registry) (Command, error) {
	r := blob.NewReader(buf)
	if err := r.GetStartVersion(commandRecord, messageVersion); err != nil {
		return Command{}, err
	}
	c := Command{Op: Op(r.Int32())}
	if r.Err() != nil {
		return Command{}, r.Err()
	}
	switch c.Op {
	case OpInit:
		wds, err := cluster.DecodeWorkDomainSpec(r)
		if err != nil {
			return Command{}, err
		}
		c.WorkDomain = wds
	case OpStep:
		s, err := step.Decode(r, reg)
		if err != nil {
			return Command{}, err
		}
		c.Step = s
	case OpQuit:
	default:
		return Command{}, mwerr.Protocol("decode command", "unknown command %s", c.Op)
	}
	if err := r.GetEnd(); err != nil {
		return Command{}, err
	}
	if r.Remaining() != 0 {
		return Command{}, mwerr.Protocol("decode command", "%d trailing byte(s)", r.Remaining())
	}
	return c, nil
}

// Reply is a worker's answer to one command.
type Reply struct {
	Op       Op
	WorkType int32
	Host     string
	OK       bool
	// Message describes the failure when OK is false.
	Message string
	// StepType is the type name of the executed step, for OpStep.
	StepType string
}

// Err returns nil for a successful reply and an error describing the
// worker's failure otherwise.
func (r Reply) Err() error {
	if r.OK {
		return nil
	}
	return fmt.Errorf("worker %s (%s) failed %s: %s", r.Host, cluster.WorkTypeName(r.WorkType), r.Op, r.Message)
}

// MarshalReply encodes r.
func MarshalReply(r Reply) ([]byte, error) {
	w := blob.NewWriter()
	w.PutStart(replyRecord, messageVersion)
	w.PutInt32(int32(r.Op))
	w.PutInt32(r.WorkType)
	w.PutString(r.Host)
	w.PutBool(r.OK)
	w.PutString(r.Message)
	w.PutString(r.StepType)
	w.PutEnd()
	return w.Finish()
}

// UnmarshalReply decodes a reply.
func UnmarshalReply(buf []byte) (Reply, error) {
	r := blob.NewReader(buf)
	if err := r.GetStartVersion(replyRecord, messageVersion); err != nil {
		return Reply{}, err
	}
	rep := Reply{
		Op:       Op(r.Int32()),
		WorkType: r.Int32(),
		Host:     r.String(),
		OK:       r.Bool(),
		Message:  r.String(),
		StepType: r.String(),
	}
	if err := r.GetEnd(); err != nil {
		return Reply{}, err
	}
	if r.Remaining() != 0 {
		return Reply{}, mwerr.Protocol("decode reply", "%d trailing byte(s)", r.Remaining())
	}
	return rep, nil
}
