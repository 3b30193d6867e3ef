package ussd

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"

	"github.com/reliefline/reliefline/internal/db/sqlite"
	"github.com/reliefline/reliefline/internal/fraud"
	"github.com/reliefline/reliefline/internal/notify"
	"github.com/reliefline/reliefline/internal/security"
	"github.com/reliefline/reliefline/internal/session"
	"github.com/reliefline/reliefline/pkg/models"
)

// Input is one gateway callback. PhoneNumber may arrive in any of the
// accepted national formats; Text is the cumulative input trail.
type Input struct {
	SessionID   string
	PhoneNumber string
	Text        string
}

// HandlerConfig collects the tunables the handler needs.
type HandlerConfig struct {
	PhoneSalt  string
	SessionTTL time.Duration
}

// Handler processes gateway callbacks end to end: caller resolution,
// fraud gating, the menu transition, and request finalization.
type Handler struct {
	cfg       HandlerConfig
	sessions  session.Store
	callers   *sqlite.CallerStore
	activity  *sqlite.ActivityStore
	requests  *sqlite.RequestStore
	resources *sqlite.ResourceStore
	guard     *fraud.Guard
	machine   *Machine
	notifier  notify.Notifier
	logger    zerolog.Logger
	now       func() time.Time
}

// NewHandler wires the USSD flow together.
func NewHandler(
	cfg HandlerConfig,
	sessions session.Store,
	callers *sqlite.CallerStore,
	activity *sqlite.ActivityStore,
	requests *sqlite.RequestStore,
	resources *sqlite.ResourceStore,
	guard *fraud.Guard,
	machine *Machine,
	notifier notify.Notifier,
	logger zerolog.Logger,
) *Handler {
	return &Handler{
		cfg:       cfg,
		sessions:  sessions,
		callers:   callers,
		activity:  activity,
		requests:  requests,
		resources: resources,
		guard:     guard,
		machine:   machine,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
	}
}

// Handle processes one callback and returns the rendered gateway reply.
// Failures never surface to the caller as errors; they end the session
// with a retry message so the handset shows something sensible.
func (h *Handler) Handle(ctx context.Context, in Input) string {
	phone := security.NormalizePhoneNumber(in.PhoneNumber)
	hash := security.HashPhone(phone, h.cfg.PhoneSalt)

	caller, err := h.callers.GetOrCreate(ctx, hash)
	if err != nil {
		h.logger.Error().Err(err).Msg("resolve caller")
		return Reply{Text: msgUnavailable, Terminal: true}.Render()
	}

	now := h.now()
	sess, err := h.sessions.Get(ctx, in.SessionID)
	if err != nil {
		h.logger.Error().Err(err).Str("session_id", in.SessionID).Msg("load session")
		return Reply{Text: msgUnavailable, Terminal: true}.Render()
	}
	if sess == nil {
		// The start budget gates new sessions only; a session that was
		// allowed to start may run to completion.
		limited, err := h.guard.RateLimited(ctx, caller.ID, sqlite.ActionSessionStart)
		if err != nil {
			h.logger.Error().Err(err).Msg("rate limit check")
			return Reply{Text: msgUnavailable, Terminal: true}.Render()
		}
		if limited {
			return Reply{Text: msgRateLimited, Terminal: true}.Render()
		}

		sess = models.NewSession(in.SessionID, caller.ID, now, h.cfg.SessionTTL)
		if err := h.activity.Record(ctx, caller.ID, sqlite.ActionSessionStart, ""); err != nil {
			h.logger.Error().Err(err).Msg("record session start")
		}
	}

	suspicious, err := h.guard.IsSuspicious(ctx, caller.ID, sqlite.ActionUSSDInput)
	if err != nil {
		h.logger.Error().Err(err).Msg("anomaly check")
		return Reply{Text: msgUnavailable, Terminal: true}.Render()
	}
	if suspicious {
		h.logger.Warn().Int64("caller_id", caller.ID).Msg("ussd input blocked")
		_ = h.sessions.Delete(ctx, in.SessionID)
		return Reply{Text: msgBlocked, Terminal: true}.Render()
	}

	out, err := h.machine.Next(ctx, sess.Step, sess.Selections, LatestToken(in.Text))
	if err != nil {
		h.logger.Error().Err(err).Str("step", string(sess.Step)).Msg("menu transition")
		_ = h.sessions.Delete(ctx, in.SessionID)
		return Reply{Text: msgUnavailable, Terminal: true}.Render()
	}

	if err := h.activity.Record(ctx, caller.ID, sqlite.ActionUSSDInput, out.Selections.Location); err != nil {
		h.logger.Error().Err(err).Msg("record input")
	}

	reply := out.Reply
	if out.Finalize {
		reply = h.finalize(ctx, phone, caller, out.Selections, now)
	}

	if reply.Terminal {
		if err := h.sessions.Delete(ctx, in.SessionID); err != nil {
			h.logger.Error().Err(err).Str("session_id", in.SessionID).Msg("drop session")
		}
		return reply.Render()
	}

	sess.Step = out.Step
	sess.Selections = out.Selections
	sess.Touch(now, h.cfg.SessionTTL)
	if err := h.sessions.Put(ctx, sess); err != nil {
		h.logger.Error().Err(err).Str("session_id", in.SessionID).Msg("save session")
		return Reply{Text: msgUnavailable, Terminal: true}.Render()
	}

	return reply.Render()
}

// finalize turns a confirmed selection into a matched request. The
// capacity reservation is a guarded decrement, so two sessions racing
// for the last unit cannot both win.
func (h *Handler) finalize(ctx context.Context, phone string, caller *models.Caller, sel models.Selections, now time.Time) Reply {
	dup, err := h.guard.IsDuplicate(ctx, caller.ID, sel.ResourceType, sel.Location)
	if err != nil {
		h.logger.Error().Err(err).Msg("duplicate check")
		return Reply{Text: msgFailed, Terminal: true}
	}
	if dup {
		return Reply{Text: msgDuplicate, Terminal: true}
	}

	resource, err := h.resources.GetByID(ctx, sel.ResourceID)
	if err != nil {
		h.logger.Error().Err(err).Int64("resource_id", sel.ResourceID).Msg("load resource")
		return Reply{Text: msgFailed, Terminal: true}
	}
	if resource == nil || !resource.IsActive || resource.AvailableCapacity <= 0 {
		return Reply{Text: msgDepleted, Terminal: true}
	}

	reserved, err := h.resources.TryReserve(ctx, resource.ID, 1)
	if err != nil {
		h.logger.Error().Err(err).Int64("resource_id", resource.ID).Msg("reserve capacity")
		return Reply{Text: msgFailed, Terminal: true}
	}
	if !reserved {
		return Reply{Text: msgDepleted, Terminal: true}
	}

	req := &models.EmergencyRequest{
		ReferenceNumber: models.NewReferenceNumber(now),
		CallerID:        caller.ID,
		ResourceID:      sql.NullInt64{Int64: resource.ID, Valid: true},
		Type:            sel.ResourceType,
		Location:        sel.Location,
		Quantity:        1,
		Status:          models.RequestStatusMatched,
		Priority:        3,
		TotalCost:       resource.PricePerUnit,
		CreatedAt:       now,
		MatchedAt:       sql.NullTime{Time: now, Valid: true},
	}
	id, err := h.requests.Create(ctx, req)
	if err != nil {
		// Undo the reservation so the unit is not stranded.
		if relErr := h.resources.Release(ctx, resource.ID, 1); relErr != nil {
			h.logger.Error().Err(relErr).Int64("resource_id", resource.ID).Msg("release after failed create")
		}
		h.logger.Error().Err(err).Msg("create request")
		return Reply{Text: msgFailed, Terminal: true}
	}

	h.logger.Info().
		Int64("request_id", id).
		Str("reference", req.ReferenceNumber).
		Int64("resource_id", resource.ID).
		Str("type", string(sel.ResourceType)).
		Msg("request matched")

	notify.Dispatch(h.notifier, notify.Event{
		Type:         notify.EventConfirmation,
		Destination:  phone,
		Reference:    req.ReferenceNumber,
		ResourceType: sel.ResourceType.Title(),
		Provider:     resource.Name,
		Location:     resource.Location,
		Contact:      resource.ContactPhone.String,
		Cost:         resource.PriceLabel(),
	})
	if resource.ContactPhone.Valid {
		notify.Dispatch(h.notifier, notify.Event{
			Type:         notify.EventProviderAlert,
			Destination:  resource.ContactPhone.String,
			Reference:    req.ReferenceNumber,
			ResourceType: sel.ResourceType.Title(),
			Location:     sel.Location,
			MaskedCaller: notify.MaskPhone(phone),
			CreatedAt:    now,
		})
	}

	return Reply{Text: confirmedMessage(req.ReferenceNumber, resource), Terminal: true}
}
