package vectornav

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/bluerov-ops/rovprep/internal/log"
	"github.com/bluerov-ops/rovprep/internal/prompt"
)

var ErrNoAnswer = errors.New("no valid answer")

const (
	DefaultSettle       = 120 * time.Second
	DefaultReplyTimeout = 15 * time.Second
	DefaultSaveDelay    = time.Second

	maxAttempts = 5
)

// Stage is how far a calibration session got.
type Stage string

const (
	StageBaseline Stage = "baseline"
	StageEstimate Stage = "estimated"
	StageSaved    Stage = "saved"
)

// Summary describes a calibration session. Before and After are nil when
// the sensor did not answer the register read in time.
type Summary struct {
	Before *HSI
	After  *HSI
	Rate   int
	Stage  Stage
}

// Session runs the HSI calibration procedure against a sensor on Port.
// The operator answers through Prompter and reads progress on Out.
type Session struct {
	Port     io.ReadWriter
	Prompter prompt.Prompter
	Out      io.Writer

	// Settle is how long estimation runs while the vehicle is rotated.
	Settle       time.Duration
	ReplyTimeout time.Duration
	SaveDelay    time.Duration

	hsi chan HSI
	mu  sync.Mutex
}

// NewSession returns a Session with the default timings.
func NewSession(port io.ReadWriter, p prompt.Prompter, out io.Writer) *Session {
	return &Session{
		Port:         port,
		Prompter:     p,
		Out:          out,
		Settle:       DefaultSettle,
		ReplyTimeout: DefaultReplyTimeout,
		SaveDelay:    DefaultSaveDelay,
	}
}

// Run performs the calibration:
//
//  1. turn asynchronous output off and read the current HSI register
//  2. ask the operator to continue and for a convergence rate (1-5)
//  3. start estimation and wait Settle while the vehicle is rotated
//  4. read the register again, stop estimation and apply the result
//  5. ask the operator to save, restore 40Hz output and write to flash
//
// Run does not close Port. Closing it ends the reader goroutine.
func (s *Session) Run(ctx context.Context) (Summary, error) {
	logger := logr.FromContextOrDiscard(ctx)
	report := Summary{Stage: StageBaseline}

	s.hsi = make(chan HSI, 4)
	go s.read(ctx)

	s.say("Turning asynchronous output off")
	if err := s.send(ctx, CmdAsyncOff); err != nil {
		return report, err
	}

	s.say("Reading the current HSI parameters")
	before, err := s.readHSI(ctx)
	if err != nil {
		return report, err
	}
	report.Before = before

	ok, err := s.confirm(ctx)
	if err != nil || !ok {
		s.say("Stopping before the HSI estimation step")
		return report, err
	}

	rate, err := s.convergenceRate(ctx)
	if err != nil {
		return report, err
	}
	report.Rate = rate

	if err := s.send(ctx, CmdStartHSI(rate)); err != nil {
		return report, err
	}
	s.say(fmt.Sprintf("Estimating for %s. Rotate the vehicle through every orientation on all axes.", s.Settle))
	if err := sleep(ctx, s.Settle); err != nil {
		return report, err
	}

	after, err := s.readHSI(ctx)
	if err != nil {
		return report, err
	}
	report.After = after

	s.say("Stopping estimation and applying the result")
	if err := s.send(ctx, CmdStopApply); err != nil {
		return report, err
	}
	report.Stage = StageEstimate

	s.say("Save the result to the sensor?")
	ok, err = s.confirm(ctx)
	if err != nil || !ok {
		s.say("Stopping before saving the result")
		return report, err
	}

	if err := s.send(ctx, CmdAsync40Hz); err != nil {
		return report, err
	}
	if err := sleep(ctx, s.SaveDelay); err != nil {
		return report, err
	}
	if err := s.send(ctx, CmdWriteFlash); err != nil {
		return report, err
	}
	report.Stage = StageSaved
	logger.Info("hsi calibration saved", "rate", rate)
	s.say("HSI calibration complete and saved")
	return report, nil
}

func (s *Session) say(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Out != nil {
		fmt.Fprintln(s.Out, msg)
	}
}

func (s *Session) send(ctx context.Context, payload string) error {
	logr.FromContextOrDiscard(ctx).V(log.DBG).Info("sending to vn100", "payload", payload)
	if _, err := s.Port.Write(Frame(payload)); err != nil {
		return fmt.Errorf("could not send %s: %w", payload, err)
	}
	return nil
}

// read consumes frames until the port fails or ctx ends, forwarding HSI
// register replies and reporting sensor errors.
func (s *Session) read(ctx context.Context) {
	logger := logr.FromContextOrDiscard(ctx)
	scanner := bufio.NewScanner(s.Port)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		msg, err := Parse(scanner.Text())
		switch {
		case errors.Is(err, ErrEmpty):
			continue
		case err != nil:
			logger.V(log.DBG).Info("discarding frame", "reason", err.Error())
			continue
		}

		if serr := msg.Err(); serr != nil {
			logger.Info("sensor reported an error", "error", serr.Error())
			s.say("WARNING: " + serr.Error())
			continue
		}
		if reg, ok := msg.Register(); ok && msg.Type == TypeReadRegister && reg == RegisterHSI {
			h, err := ParseHSI(msg)
			if err != nil {
				logger.Info("could not decode hsi register", "reason", err.Error())
				continue
			}
			select {
			case s.hsi <- h:
			default:
				logger.Info("unexpected hsi register reply dropped")
			}
			continue
		}
		logger.V(log.TRC).Info("unhandled message", "type", msg.Type)
	}
	if err := scanner.Err(); err != nil {
		logger.V(log.DBG).Info("serial reader stopped", "reason", err.Error())
	}
}

// readHSI requests the HSI register and waits ReplyTimeout for the reply.
// A missing reply is reported to the operator and yields nil.
func (s *Session) readHSI(ctx context.Context) (*HSI, error) {
	// drop replies that arrived after an earlier timeout
	for len(s.hsi) > 0 {
		<-s.hsi
	}
	if err := s.send(ctx, CmdReadHSI); err != nil {
		return nil, err
	}

	timer := time.NewTimer(s.ReplyTimeout)
	defer timer.Stop()
	select {
	case h := <-s.hsi:
		s.say("HSI parameters:\n" + h.String())
		return &h, nil
	case <-timer.C:
		s.say(fmt.Sprintf("WARNING: no HSI reply within %s", s.ReplyTimeout))
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Session) confirm(ctx context.Context) (bool, error) {
	for i := 0; i < maxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		choice, err := s.Prompter.Confirm("Would you like to continue? (y/n): ")
		if err != nil {
			return false, err
		}
		switch choice {
		case prompt.Yes:
			return true, nil
		case prompt.No:
			return false, nil
		}
		s.say("Invalid response, try again")
	}
	return false, fmt.Errorf("%w after %d attempts", ErrNoAnswer, maxAttempts)
}

func (s *Session) convergenceRate(ctx context.Context) (int, error) {
	for i := 0; i < maxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		answer, err := s.Prompter.Ask("What convergence rate would you like? (1-5): ")
		if err != nil {
			return 0, err
		}
		if rate, err := strconv.Atoi(answer); err == nil && rate >= 1 && rate <= 5 {
			return rate, nil
		}
		s.say("Invalid convergence rate, it must be a whole number between 1 and 5")
	}
	return 0, fmt.Errorf("%w after %d attempts", ErrNoAnswer, maxAttempts)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
