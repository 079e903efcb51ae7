package webhook

import (
	"errors"
	"io"
	"net/http"

	"beautyhub-controlplane/pkg/errutil"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

// MaxBodyBytes bounds the payload read from the processor.
const MaxBodyBytes = int64(65536)

const SignatureHeader = "Stripe-Signature"

var Module = fx.Module("webhook",
	fx.Provide(
		NewVerifier,
		NewDeduper,
		NewRouter,
		NewHandler,
	),
	fx.Invoke(Register),
)

type Handler struct {
	verifier *Verifier
	router   *Router
}

func NewHandler(v *Verifier, r *Router) *Handler {
	return &Handler{verifier: v, router: r}
}

func Register(engine *gin.Engine, h *Handler) {
	engine.POST("/webhooks/stripe", h.Receive)
}

// Receive verifies and dispatches one delivery. Only a 2xx answer stops the
// processor from delivering the event again.
func (h *Handler) Receive(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes))
	if err != nil {
		_ = c.Error(errutil.BadRequest("unreadable body", err))
		return
	}

	event, err := h.verifier.Verify(payload, c.GetHeader(SignatureHeader))
	if err != nil {
		_ = c.Error(err)
		return
	}

	if _, err := h.router.Dispatch(c.Request.Context(), event); err != nil {
		_ = c.Error(asBaseError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

func asBaseError(err error) error {
	var base errutil.BaseError
	if errors.As(err, &base) {
		return err
	}
	return errutil.Internal("failed to process event", err)
}
