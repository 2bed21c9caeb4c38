// internal/dispatch/dispatcher.go
package dispatch

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appErrors "github.com/ridgewater/outreach-service/internal/errors"
)

// Caller is the voice-platform surface the dispatcher needs.
type Caller interface {
	InitiateCall(ctx context.Context, customerPhone string, callType CallType, callCtx CallContext) (*CallHandle, error)
	GetCallStatus(ctx context.Context, callID string) (*CallStatus, error)
}

// Messenger is the SMS-provider surface the dispatcher needs.
type Messenger interface {
	SendSMS(ctx context.Context, toNumber, body string) (*MessageHandle, error)
}

// Dispatcher fronts both outreach channels behind one interface. Channel
// failures come back as structured ErrDispatchFailed values so the
// orchestrator can record them and continue with the next customer.
type Dispatcher struct {
	voice Caller
	sms   Messenger
	msgs  *Catalog
	log   *zap.Logger
}

func NewDispatcher(voice Caller, sms Messenger, msgs *Catalog, log *zap.Logger) *Dispatcher {
	return &Dispatcher{voice: voice, sms: sms, msgs: msgs, log: log}
}

// Messages exposes the deterministic message catalog.
func (d *Dispatcher) Messages() *Catalog { return d.msgs }

// Call initiates a voice call. A fresh idempotency key is attached so the
// platform can drop an accidental duplicate submission.
func (d *Dispatcher) Call(ctx context.Context, customerPhone string, callType CallType, callCtx CallContext) (*CallHandle, error) {
	callCtx.IdempotencyKey = uuid.NewString()

	handle, err := d.voice.InitiateCall(ctx, customerPhone, callType, callCtx)
	if err != nil {
		d.log.Error("call_dispatch_failed",
			zap.String("customer_id", callCtx.CustomerID),
			zap.Error(err))
		return nil, appErrors.NewDispatchFailed("call", err.Error())
	}
	return handle, nil
}

// SMS sends a text message through the provider.
func (d *Dispatcher) SMS(ctx context.Context, customerPhone, body string) (*MessageHandle, error) {
	handle, err := d.sms.SendSMS(ctx, customerPhone, body)
	if err != nil {
		d.log.Error("sms_dispatch_failed",
			zap.String("to", customerPhone),
			zap.Error(err))
		return nil, appErrors.NewDispatchFailed("sms", err.Error())
	}
	return handle, nil
}

// Status looks up a call on the voice platform.
func (d *Dispatcher) Status(ctx context.Context, callID string) (*CallStatus, error) {
	return d.voice.GetCallStatus(ctx, callID)
}
