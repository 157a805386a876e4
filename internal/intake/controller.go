package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-intake-agent/internal/appointment"
	"github.com/hackgods/clinic-intake-agent/internal/metrics"
	"github.com/hackgods/clinic-intake-agent/internal/patient"
	redisclient "github.com/hackgods/clinic-intake-agent/internal/redis"
	"github.com/hackgods/clinic-intake-agent/internal/schedule"
	"github.com/hackgods/clinic-intake-agent/pkg/logging"
)

var ErrSessionBusy = errors.New("session is handling another message")

const (
	greetingMessage   = "Hello! I'm your clinic assistant. May I have your full name, DOB (YYYY-MM-DD), preferred doctor (Dr_Sharma/Dr_Iyer), and location?"
	nameRetryMessage  = "I need your first and last name to look you up. Please send: name=First Last, dob=YYYY-MM-DD, doctor=..., location=..."
	insuranceRequest  = "Please provide your insurance: carrier, member_id, group_number."
	noSlotsMessage    = "Hmm, I don't see open slots in the next %d days for that doctor. Try another doctor or date."
	invalidNumber     = "Please reply with a valid slot number (e.g., 3)."
	outOfRangeMessage = "That number is out of range. Try again."
	slotTakenMessage  = "Oops, that slot just got booked by someone else. Please pick another number."
	scheduleBusy      = "The schedule is busy right now. Please send the number again."
	doneMessage       = "You're all set! If you want to book another appointment, just type restart."
)

type PatientStore interface {
	Find(ctx context.Context, fullName, dob string) (*patient.Patient, error)
	Register(ctx context.Context, np patient.NewPatient) (*patient.Patient, error)
	MarkReturning(ctx context.Context, id int) error
	UpdateInsurance(ctx context.Context, id int, ins patient.Insurance) (*patient.Patient, error)
}

type SlotFinder interface {
	OpenSlots(ctx context.Context, doctor, date string) ([]schedule.Slot, error)
}

type Booker interface {
	Book(ctx context.Context, req appointment.BookingRequest) (*appointment.Appointment, error)
}

// Reply is what one turn says back.
type Reply struct {
	SessionID   string                   `json:"session_id"`
	Stage       Stage                    `json:"stage"`
	Messages    []string                 `json:"messages"`
	Slots       []schedule.Slot          `json:"slots,omitempty"`
	Appointment *appointment.Appointment `json:"appointment,omitempty"`
}

func (r *Reply) say(format string, args ...any) {
	if len(args) > 0 {
		format = fmt.Sprintf(format, args...)
	}
	r.Messages = append(r.Messages, format)
}

type Options struct {
	Defaults      Defaults
	LookaheadDays int
	Now           func() time.Time
	Logger        *logging.Logger
	Metrics       *metrics.Metrics
}

// Controller drives intake conversations. Turns of one session run one at a
// time through the locker; different sessions proceed in parallel.
type Controller struct {
	patients  PatientStore
	slots     SlotFinder
	booker    Booker
	sessions  SessionStore
	locker    redisclient.Locker
	defaults  Defaults
	lookahead int
	now       func() time.Time
	logger    *logging.Logger
	metrics   *metrics.Metrics
}

func NewController(patients PatientStore, slots SlotFinder, booker Booker, sessions SessionStore, locker redisclient.Locker, opts Options) *Controller {
	if opts.LookaheadDays <= 0 {
		opts.LookaheadDays = 3
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	return &Controller{
		patients:  patients,
		slots:     slots,
		booker:    booker,
		sessions:  sessions,
		locker:    locker,
		defaults:  opts.Defaults,
		lookahead: opts.LookaheadDays,
		now:       opts.Now,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}
}

// Start opens a new session and greets it.
func (c *Controller) Start(ctx context.Context) (*Reply, error) {
	sess := newSession(uuid.NewString(), c.now())
	reply := &Reply{SessionID: sess.ID}
	c.greet(sess, reply)

	if err := c.save(ctx, sess); err != nil {
		return nil, err
	}
	reply.Stage = sess.Stage
	c.logger.Info("session started", "session_id", sess.ID)
	return reply, nil
}

// Session returns the stored state of a session.
func (c *Controller) Session(ctx context.Context, id string) (*Session, error) {
	return c.sessions.Load(ctx, id)
}

// Handle runs one user turn. An unknown session id starts a new session
// under that id. Bad input is answered with a prompt; only failures of the
// stores come back as errors, and then the session is left as it was.
func (c *Controller) Handle(ctx context.Context, sessionID, text string) (*Reply, error) {
	var reply *Reply
	err := c.locker.WithLock(ctx, "session:"+sessionID, func(ctx context.Context) error {
		var err error
		reply, err = c.turn(ctx, sessionID, text)
		return err
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return nil, ErrSessionBusy
	}
	if err != nil {
		return nil, err
	}
	return reply, nil
}

func (c *Controller) turn(ctx context.Context, sessionID, text string) (*Reply, error) {
	sess, err := c.sessions.Load(ctx, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		sess = newSession(sessionID, c.now())
	} else if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	c.metrics.ObserveTurn(sess.Stage.String())
	reply := &Reply{SessionID: sessionID}

	if IsRestart(text) {
		c.logger.Info("session restarted", "session_id", sessionID, "from_stage", sess.Stage)
		sess.reset()
		c.greet(sess, reply)
	} else if err := c.dispatch(ctx, sess, text, reply); err != nil {
		c.logger.Error("turn failed", "session_id", sessionID, "stage", sess.Stage, "error", err)
		return nil, err
	}

	if err := c.save(ctx, sess); err != nil {
		return nil, err
	}
	reply.Stage = sess.Stage
	return reply, nil
}

func (c *Controller) dispatch(ctx context.Context, sess *Session, text string, reply *Reply) error {
	if sess.Stage == StageGreet {
		// greeting consumes no input; the same message goes on to collect
		c.greet(sess, reply)
		if strings.TrimSpace(text) == "" {
			return nil
		}
	}

	switch sess.Stage {
	case StageCollect:
		return c.collect(ctx, sess, text, reply)
	case StageInsurance:
		return c.insurance(ctx, sess, text, reply)
	case StagePickSlot:
		return c.pickSlot(ctx, sess, text, reply)
	case StageDone:
		reply.say(doneMessage)
		return nil
	default:
		c.logger.Warn("unknown stage, restarting session", "session_id", sess.ID, "stage", sess.Stage)
		sess.reset()
		c.greet(sess, reply)
		return nil
	}
}

func (c *Controller) greet(sess *Session, reply *Reply) {
	reply.say(greetingMessage)
	sess.Stage = StageCollect
}

func (c *Controller) collect(ctx context.Context, sess *Session, text string, reply *Reply) error {
	form, err := ParseIntake(text, c.defaults)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			reply.say(nameRetryMessage)
			return nil
		}
		return err
	}

	p, err := c.patients.Find(ctx, form.Name, form.DOB)
	switch {
	case errors.Is(err, patient.ErrPatientNotFound):
		p, err = c.register(ctx, form, patient.Insurance{})
		if err != nil {
			return err
		}
		sess.NewPatient = true
		reply.say("I couldn't find you in our records, so you're now registered as a new patient. Duration will be %d min. %s",
			appointment.NewPatientMinutes, insuranceRequest)

	case err != nil:
		return fmt.Errorf("find patient: %w", err)

	default:
		wasReturning := p.IsReturning
		if err := c.patients.MarkReturning(ctx, p.ID); err != nil {
			return fmt.Errorf("mark returning: %w", err)
		}
		sess.NewPatient = !wasReturning
		if wasReturning {
			reply.say("Welcome back, %s! I detected you as a returning patient. Duration will be %d min. Please confirm/update your insurance: carrier, member_id, group_number.",
				p.FirstName, appointment.ReturningPatientMinutes)
		} else {
			reply.say("Hello %s! I detected you as a new patient. Duration will be %d min. Please confirm/update your insurance: carrier, member_id, group_number.",
				p.FirstName, appointment.NewPatientMinutes)
		}
	}

	sess.Form = form
	sess.PatientID = p.ID
	sess.Slots = nil
	sess.Stage = StageInsurance
	c.logger.Info("patient identified", "session_id", sess.ID, "patient_id", p.ID, "new_patient", sess.NewPatient)
	return nil
}

func (c *Controller) register(ctx context.Context, form IntakeForm, ins patient.Insurance) (*patient.Patient, error) {
	first, last, _ := patient.SplitName(form.Name)
	p, err := c.patients.Register(ctx, patient.NewPatient{
		FirstName:       first,
		LastName:        last,
		DOB:             form.DOB,
		PreferredDoctor: form.Doctor,
		Insurance:       ins,
	})
	if err != nil {
		return nil, fmt.Errorf("register patient: %w", err)
	}
	return p, nil
}

func (c *Controller) insurance(ctx context.Context, sess *Session, text string, reply *Reply) error {
	sess.Insurance = ParseInsurance(text)

	slots := c.upcomingSlots(ctx, sess.Form.Doctor)
	if len(slots) == 0 {
		reply.say(noSlotsMessage, c.lookahead)
		sess.Slots = nil
		sess.Stage = StageCollect
		return nil
	}

	sess.Slots = slots
	reply.Slots = slots
	reply.say(slotMenu(slots, c.lookahead))
	sess.Stage = StagePickSlot
	return nil
}

// upcomingSlots reads open slots for today and the following days, fresh
// from the schedule on every call.
func (c *Controller) upcomingSlots(ctx context.Context, doctor string) []schedule.Slot {
	today := c.now()
	var out []schedule.Slot
	for i := 0; i < c.lookahead; i++ {
		date := today.AddDate(0, 0, i).Format("2006-01-02")
		open, err := c.slots.OpenSlots(ctx, doctor, date)
		if err != nil {
			c.logger.Warn("slot query failed", "doctor", doctor, "date", date, "error", err)
			continue
		}
		out = append(out, open...)
	}
	return out
}

func slotMenu(slots []schedule.Slot, days int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Available slots (next %d days):\n", days)
	for i, s := range slots {
		fmt.Fprintf(&b, "%d. %s\n", i, s.Label())
	}
	b.WriteString("\nReply with the number of your preferred slot.")
	return b.String()
}

func (c *Controller) pickSlot(ctx context.Context, sess *Session, text string, reply *Reply) error {
	idx, err := ParseSelection(text, len(sess.Slots))
	if err != nil {
		if errors.Is(err, ErrSelectionOutOfRange) {
			reply.say(outOfRangeMessage)
		} else {
			reply.say(invalidNumber)
		}
		reply.Slots = sess.Slots
		return nil
	}
	selected := sess.Slots[idx]

	p, err := c.patients.UpdateInsurance(ctx, sess.PatientID, sess.Insurance)
	if errors.Is(err, patient.ErrPatientNotFound) {
		// the record went away since collect; put it back with this insurance
		p, err = c.register(ctx, sess.Form, sess.Insurance)
		if err == nil {
			sess.PatientID = p.ID
		}
	}
	if err != nil {
		return fmt.Errorf("save insurance: %w", err)
	}

	appt, err := c.booker.Book(ctx, appointment.BookingRequest{
		Patient:     *p,
		PatientName: sess.Form.Name,
		DOB:         sess.Form.DOB,
		Slot:        selected,
		NewPatient:  sess.NewPatient,
		Insurance:   sess.Insurance,
	})
	switch {
	case errors.Is(err, schedule.ErrSlotAlreadyBooked), errors.Is(err, schedule.ErrSlotNotFound):
		reply.say(slotTakenMessage)
		reply.Slots = sess.Slots
		return nil
	case errors.Is(err, appointment.ErrSlotBeingBooked), errors.Is(err, schedule.ErrStoreUnreadable):
		reply.say(scheduleBusy)
		reply.Slots = sess.Slots
		return nil
	case err != nil:
		return fmt.Errorf("book appointment: %w", err)
	}

	sess.AppointmentID = appt.ID
	sess.Slots = nil
	sess.Stage = StageDone
	reply.Appointment = appt
	reply.say("Booked! %s %s with %s at %s.\n\nI've sent a confirmation email/SMS and dispatched the intake form.",
		appt.Date, appt.StartTime, appt.Doctor, appt.Location)
	return nil
}

func (c *Controller) save(ctx context.Context, sess *Session) error {
	sess.UpdatedAt = c.now()
	if err := c.sessions.Save(ctx, sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}
