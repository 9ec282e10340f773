// Package scanner drives the scan lifecycle: decode, optimistic record,
// server round trip, resolution, cooldown.
package scanner

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"qrattendance/internal/apiclient"
	"qrattendance/internal/attendance"
)

// State is the controller's lifecycle state.
type State int

const (
	Idle State = iota
	Scanning
	Paused
	Submitting
	Resolved
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scanning:
		return "scanning"
	case Paused:
		return "paused"
	case Submitting:
		return "submitting"
	case Resolved:
		return "resolved"
	}
	return "unknown"
}

var (
	// ErrModeLocked is returned when a non-admin session tries to switch mode.
	ErrModeLocked = errors.New("scan mode is locked to Student")
	// ErrBusy is returned when the mode changes while a scan is syncing.
	ErrBusy = errors.New("a scan is still syncing")
)

// Submitter sends one scan to the server.
type Submitter interface {
	Mark(ctx context.Context, qrData string, mode attendance.Mode) (*apiclient.MarkResult, error)
}

// Banner summarises the most recent scan outcome.
type Banner struct {
	Text    string
	Mode    attendance.Mode
	Success bool
	Message string
}

// Config configures a Controller.
type Config struct {
	APIURL         string
	IsAdmin        bool
	Mode           attendance.Mode
	Cooldown       time.Duration
	BannerTTL      time.Duration
	RequestTimeout time.Duration
	Clock          Clock
	OnUpdate       func(Record)
	OnBanner       func(Banner)
}

// Controller owns the record list and the decoder's pause/resume cycle.
type Controller struct {
	cfg     Config
	decoder Decoder
	submit  Submitter
	clock   Clock

	mu            sync.Mutex
	state         State
	mode          attendance.Mode
	records       []Record
	inFlight      bool
	banner        *Banner
	bannerSeq     uint64
	bannerTimer   Timer
	cooldownTimer Timer
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// New creates an idle controller.
func New(cfg Config, decoder Decoder, submit Submitter) *Controller {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 2 * time.Second
	}
	if cfg.BannerTTL <= 0 {
		cfg.BannerTTL = 4 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	mode := attendance.ModeStudent
	if cfg.IsAdmin {
		if m, ok := attendance.ParseMode(string(cfg.Mode)); ok {
			mode = m
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		cfg:     cfg,
		decoder: decoder,
		submit:  submit,
		clock:   cfg.Clock,
		mode:    mode,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins accepting decodes.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Idle {
		c.state = Scanning
	}
}

// Stop cancels any in-flight submission, stops timers and waits for the
// submission goroutine to finish.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.state = Idle
	c.cancel()
	if c.cooldownTimer != nil {
		c.cooldownTimer.Stop()
		c.cooldownTimer = nil
	}
	if c.bannerTimer != nil {
		c.bannerTimer.Stop()
		c.bannerTimer = nil
	}
	c.mu.Unlock()
	c.wg.Wait()
}

// Wait blocks until no submission is in flight.
func (c *Controller) Wait() { c.wg.Wait() }

// HandleDecodeError receives decoder errors. Frames without a code are normal
// and are dropped silently.
func (c *Controller) HandleDecodeError(msg string) {
	if strings.Contains(strings.ToLower(msg), strings.ToLower(NoCodeFound)) {
		return
	}
	log.Printf("scanner error: %s", msg)
}

// HandleDecode processes a successful decode. It reports whether the decode
// produced a record; decodes are ignored while a submission is in flight.
func (c *Controller) HandleDecode(text string, at time.Time) bool {
	c.mu.Lock()
	if c.state == Idle || c.inFlight || c.decoder.Paused() {
		c.mu.Unlock()
		return false
	}
	rec := Record{
		ID:          RecordID(text, at),
		DecodedText: text,
		Mode:        ResolveMode(text, c.mode),
		Timestamp:   at,
	}
	before := len(c.records)
	c.records = Reduce(c.records, Action{Kind: Created, Record: rec})
	if len(c.records) == before {
		// same text at the same millisecond
		c.mu.Unlock()
		return false
	}
	rec = c.records[0]

	c.decoder.Pause()
	c.state = Paused
	c.clearBannerLocked()
	c.armCooldownLocked()

	if c.cfg.APIURL == "" {
		// nothing is sent without an endpoint
		resolved, banner := c.resolveLocked(rec, nil, apiclient.ErrConfigMissing)
		c.mu.Unlock()
		c.notify(rec)
		c.notify(resolved)
		c.notifyBanner(banner)
		return true
	}

	c.inFlight = true
	c.state = Submitting
	ctx := c.ctx
	c.wg.Add(1)
	c.mu.Unlock()

	c.notify(rec)
	go c.run(ctx, rec)
	return true
}

func (c *Controller) run(ctx context.Context, rec Record) {
	defer c.wg.Done()
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	res, err := c.submit.Mark(ctx, rec.DecodedText, rec.Mode)
	if err == nil && res == nil {
		err = errors.New("Failed to connect to server.")
	}

	c.mu.Lock()
	c.inFlight = false
	resolved, banner := c.resolveLocked(rec, res, err)
	c.mu.Unlock()

	c.notify(resolved)
	c.notifyBanner(banner)
}

// resolveLocked applies the terminal transition for rec and shows the banner.
func (c *Controller) resolveLocked(rec Record, res *apiclient.MarkResult, err error) (Record, Banner) {
	banner := Banner{Text: rec.DecodedText, Mode: rec.Mode}
	if err != nil {
		msg := errorMessage(err)
		c.records = Reduce(c.records, Action{Kind: Rejected, ID: rec.ID, Message: msg})
		banner.Message = msg
	} else {
		c.records = Reduce(c.records, Action{Kind: Accepted, ID: rec.ID, Message: res.Message, AttendanceStatus: res.AttendanceStatus})
		banner.Success = true
		banner.Message = res.Message
		if banner.Message == "" {
			banner.Message = "Success!"
		}
	}

	if c.state != Idle {
		if c.decoder.Paused() {
			c.state = Resolved
		} else {
			c.state = Scanning
		}
		c.showBannerLocked(banner)
	}

	for _, r := range c.records {
		if r.ID == rec.ID {
			return r, banner
		}
	}
	return rec, banner
}

// errorMessage turns a submission error into the text shown to the operator.
// Transport detail goes to the log only.
func errorMessage(err error) string {
	var (
		rej    *apiclient.RejectedError
		netErr *apiclient.NetworkError
	)
	switch {
	case errors.As(err, &rej):
		return rej.Message
	case errors.Is(err, apiclient.ErrConfigMissing):
		return apiclient.ErrConfigMissing.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return "Request timed out. Please scan again."
	case errors.Is(err, context.Canceled):
		return "Scan cancelled before the server replied."
	case errors.As(err, &netErr):
		log.Printf("submit failed: %v", err)
		return "Failed to connect to server."
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return "Failed to connect to server."
}

// armCooldownLocked schedules the decoder to resume after the cooldown,
// whether or not the submission has finished.
func (c *Controller) armCooldownLocked() {
	if c.cooldownTimer != nil {
		c.cooldownTimer.Stop()
	}
	c.cooldownTimer = c.clock.AfterFunc(c.cfg.Cooldown, c.endCooldown)
}

func (c *Controller) endCooldown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cooldownTimer = nil
	if c.state == Idle {
		return
	}
	if c.decoder.Paused() {
		c.decoder.Resume()
	}
	if !c.inFlight {
		c.state = Scanning
	}
}

func (c *Controller) showBannerLocked(b Banner) {
	c.clearBannerLocked()
	c.banner = &b
	seq := c.bannerSeq
	c.bannerTimer = c.clock.AfterFunc(c.cfg.BannerTTL, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.bannerSeq == seq {
			c.banner = nil
			c.bannerTimer = nil
		}
	})
}

func (c *Controller) clearBannerLocked() {
	c.bannerSeq++
	c.banner = nil
	if c.bannerTimer != nil {
		c.bannerTimer.Stop()
		c.bannerTimer = nil
	}
}

func (c *Controller) notify(r Record) {
	if c.cfg.OnUpdate != nil {
		c.cfg.OnUpdate(r)
	}
}

func (c *Controller) notifyBanner(b Banner) {
	if c.cfg.OnBanner != nil {
		c.cfg.OnBanner(b)
	}
}

// SetMode switches the fallback mode. Only admin sessions may switch, and not
// while a scan is syncing.
func (c *Controller) SetMode(m attendance.Mode) error {
	if _, ok := attendance.ParseMode(string(m)); !ok {
		return attendance.ErrInvalidMode
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.cfg.IsAdmin && m != attendance.ModeStudent {
		return ErrModeLocked
	}
	if c.inFlight {
		return ErrBusy
	}
	c.mode = m
	return nil
}

// Mode returns the selected fallback mode.
func (c *Controller) Mode() attendance.Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// State returns the lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Records returns the session log, most recent first.
func (c *Controller) Records() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Record, len(c.records))
	copy(out, c.records)
	return out
}

// Banner returns the current banner, if one is showing.
func (c *Controller) Banner() (Banner, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.banner == nil {
		return Banner{}, false
	}
	return *c.banner, true
}
