package app

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"switchboard/internal/api"
	"switchboard/internal/channel"
	apierrors "switchboard/internal/errors"
	"switchboard/internal/middleware"
	"switchboard/internal/routing"
	"switchboard/internal/websocket"
	"switchboard/pkg/contracts"
	v1 "switchboard/pkg/contracts/api/v1"
	"switchboard/pkg/contracts/events"
)

// Instance describes the running process. It travels to every handler as a
// request extension.
type Instance struct {
	Service   string
	Version   string
	StartedAt time.Time
}

// echoContent is the typed content of an echo request. Err holds the
// problem to report when the body could not be used.
type echoContent struct {
	Body v1.EchoRequest
	Err  *apierrors.APIError
	Path string
}

// socketContent is what the socket routes need from the handshake
type socketContent struct {
	Name string
	Path string
}

func socketFromOrigin(o websocket.Origin) socketContent {
	return socketContent{Name: strings.TrimSpace(o.Query.Get("name")), Path: o.Path}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report JSON field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// echoFromOrigin maps decode and validation failures onto API errors
func echoFromOrigin(o api.RequestOrigin[v1.EchoRequest]) echoContent {
	content := echoContent{Body: o.Data, Path: o.Path}

	switch {
	case errors.Is(o.Err, api.ErrContentTypeMissed), errors.Is(o.Err, api.ErrContentTypeIncorrect):
		content.Err = apierrors.ErrUnsupportedMediaType
	case o.Err != nil:
		content.Err = apierrors.InvalidRequestWithError(o.Err)
	default:
		var fieldErrs validator.ValidationErrors
		if err := validate.Struct(o.Data); errors.As(err, &fieldErrs) {
			fe := fieldErrs[0]
			content.Err = apierrors.ErrValidation(fe.Field(), "failed on "+fe.Tag())
		}
	}
	return content
}

func (a *Application) setupRouter() (*routing.Router, error) {
	jsonConv := api.JSONConverter{Pretty: a.Config.API.PrettyJSON}

	socketOpts := []websocket.Option{
		websocket.WithLogger(a.Logger),
		websocket.WithMetrics(a.Metrics),
		websocket.WithAbortOnWrongMethod(a.Config.WebSocket.AbortOnWrongMethod),
		websocket.WithConfig(websocket.Config{
			MaxFrameSize:   a.Config.WebSocket.MaxFrameSize,
			MaxMessageSize: a.Config.WebSocket.MaxMessageSize,
			WriteTimeout:   a.Config.WebSocket.WriteTimeout,
		}),
	}

	echoSocket := websocket.NewMiddleware[socketContent, *api.Channel[events.EchoReply, events.EchoFrame]](
		api.JSONChannelConverter[events.EchoReply, events.EchoFrame]{JSON: jsonConv},
		socketFromOrigin, socketOpts...)
	chatSocket := websocket.NewMiddleware[socketContent, *api.Channel[events.ChatEvent, events.ChatInput]](
		api.JSONChannelConverter[events.ChatEvent, events.ChatInput]{JSON: jsonConv},
		socketFromOrigin, socketOpts...)

	apiV1 := routing.NewRoutes("/api/v1").
		Get("/health", api.Handle(jsonConv, a.healthFromOrigin, a.health)).
		Post("/echo", api.Handle(jsonConv, echoFromOrigin, a.echo))

	return routing.NewBuilder().
		Routes(apiV1).
		Get("/ws/echo", websocket.Handle(echoSocket, a.echoSession)).
		Get("/ws/chat", websocket.Handle(chatSocket, a.chatSession)).
		Fallback(notFound).
		Logger(a.Logger).
		Metrics(a.Metrics).
		Build()
}

func (a *Application) healthFromOrigin(o api.RequestOrigin[struct{}]) Instance {
	inst, _ := routing.ExtensionOf[Instance](o.Extensions)
	return inst
}

func (a *Application) health(ctx context.Context, req api.Request[Instance]) api.Response[v1.HealthResponse, *apierrors.ProblemDetails] {
	inst := req.Content
	return api.OK[v1.HealthResponse, *apierrors.ProblemDetails](v1.HealthResponse{
		Status:      "healthy",
		Service:     inst.Service,
		Version:     inst.Version,
		GoVersion:   contracts.GetVersionInfo().GoVersion,
		Uptime:      time.Since(inst.StartedAt).Round(time.Second).String(),
		ChatClients: a.ChatHub.ClientCount(),
	})
}

func (a *Application) echo(ctx context.Context, req api.Request[echoContent]) api.Response[v1.EchoResponse, *apierrors.ProblemDetails] {
	if req.Content.Err != nil {
		return api.Fail[v1.EchoResponse](apierrors.FromAPIError(req.Content.Err, req.Content.Path))
	}

	body := req.Content.Body
	message := body.Message
	if body.Repeat > 1 {
		message = strings.Repeat(body.Message, body.Repeat)
	}
	return api.OK[v1.EchoResponse, *apierrors.ProblemDetails](v1.EchoResponse{
		Message:   message,
		Length:    utf8.RuneCountInString(message),
		RequestID: middleware.GetReqID(ctx),
	})
}

// echoSession answers every frame with its text and a sequence number.
// Frames that are not valid JSON are skipped.
func (a *Application) echoSession(ctx context.Context, req websocket.Request[socketContent, *api.Channel[events.EchoReply, events.EchoFrame]]) websocket.Response {
	return req.Upgrade.OnUpgraded(func(ctx context.Context, ch *api.Channel[events.EchoReply, events.EchoFrame]) error {
		seq := 0
		for frame, err := range ch.Receiver.All(ctx) {
			if err != nil {
				var convErr *channel.ConvertError
				if errors.As(err, &convErr) {
					a.Logger.DebugContext(ctx, "skipping malformed frame",
						slog.String("remote_addr", ch.RemoteAddr),
						slog.String("error", err.Error()))
					continue
				}
				return err
			}
			seq++
			if err := ch.Sender.Send(ctx, events.EchoReply{Echo: frame.Message, Seq: seq}); err != nil {
				return err
			}
		}
		return nil
	})
}

// chatSession joins the peer to the chat room. Every message it sends is
// broadcast to all members, itself included.
func (a *Application) chatSession(ctx context.Context, req websocket.Request[socketContent, *api.Channel[events.ChatEvent, events.ChatInput]]) websocket.Response {
	name := req.Content.Name
	if name == "" {
		return websocket.Reject(apierrors.FromAPIError(
			apierrors.ErrValidation("name", "query parameter is required"), req.Content.Path).Response())
	}

	return req.Upgrade.OnUpgraded(func(ctx context.Context, ch *api.Channel[events.ChatEvent, events.ChatInput]) error {
		client := websocket.NewClient[events.ChatEvent](ch.Sender, ch.RemoteAddr, a.Logger)
		if err := a.ChatHub.Join(ctx, client); err != nil {
			return err
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			// a closed queue cancels gctx, which closes the connection and
			// ends the read loop below
			return client.WritePump(gctx)
		})
		g.Go(func() error {
			// leaving closes the client's queue, which ends the pump
			defer a.ChatHub.Leave(client)

			for in, err := range ch.Receiver.All(gctx) {
				if err != nil {
					var convErr *channel.ConvertError
					if errors.As(err, &convErr) {
						continue
					}
					return err
				}
				event := events.ChatEvent{From: name, Text: in.Text, At: time.Now().UTC()}
				if err := a.ChatHub.Broadcast(gctx, event); err != nil {
					return err
				}
			}
			return nil
		})
		if err := g.Wait(); !errors.Is(err, websocket.ErrQueueClosed) {
			return err
		}
		return nil
	})
}

func notFound(ctx context.Context, req *routing.Request) *routing.Response {
	return apierrors.FromAPIError(apierrors.NotFoundError("route "+req.Method+" "+req.Path), req.Path).Response()
}
