// internal/runtime/googleapi.go adapts *gmail.Service to the narrow gmail.Client interface
package runtime

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"mime"
	"net/mail"
	"strings"
	"time"

	"google.golang.org/api/gmail/v1"

	gc "github.com/joshsymonds/mailtriage/internal/gmail"
)

const me = "me"

type googleClient struct {
	svc *gmail.Service
	log *slog.Logger
}

func NewGoogleAPIClient(svc *gmail.Service, logger *slog.Logger) *googleClient {
	if logger == nil {
		logger = DefaultLogger()
	}
	return &googleClient{svc: svc, log: logger}
}

func (g *googleClient) List(ctx context.Context, q gc.Query, pageToken string, pageSize int) (gc.ListPage, error) {
	call := g.svc.Users.Messages.List(me).Q(q.Raw).MaxResults(int64(pageSize))
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	res, err := call.Context(ctx).Do()
	if err != nil {
		return gc.ListPage{}, err
	}
	page := gc.ListPage{NextPageToken: res.NextPageToken}
	for _, m := range res.Messages {
		page.IDs = append(page.IDs, gc.MessageID(m.Id))
	}
	return page, nil
}

func (g *googleClient) Get(ctx context.Context, id gc.MessageID) (gc.Message, error) {
	msg, err := g.svc.Users.Messages.Get(me, string(id)).Format("full").Context(ctx).Do()
	if err != nil {
		return gc.Message{}, err
	}
	out := gc.Message{
		ID:       id,
		ThreadID: gc.ThreadID(msg.ThreadId),
		Labels:   toLabelIDs(msg.LabelIds),
		Headers:  map[string]string{},
	}
	if msg.Payload != nil {
		for _, hd := range msg.Payload.Headers {
			out.Headers[hd.Name] = hd.Value
		}
		out.Body = convertPart(msg.Payload)
	}
	out.Received = receivedAt(msg.InternalDate, out.Header("Date"))
	return out, nil
}

func (g *googleClient) ThreadSize(ctx context.Context, id gc.ThreadID) (int, error) {
	th, err := g.svc.Users.Threads.Get(me, string(id)).Format("minimal").Context(ctx).Do()
	if err != nil {
		return 0, err
	}
	return len(th.Messages), nil
}

func (g *googleClient) Modify(ctx context.Context, id gc.MessageID, ops gc.ModifyOps) error {
	req := &gmail.ModifyMessageRequest{}
	if len(ops.AddLabels) > 0 {
		req.AddLabelIds = toStringsL(ops.AddLabels)
	}
	if len(ops.RemoveLabels) > 0 {
		req.RemoveLabelIds = toStringsL(ops.RemoveLabels)
	}
	_, err := g.svc.Users.Messages.Modify(me, string(id), req).Context(ctx).Do()
	return err
}

func (g *googleClient) Send(ctx context.Context, msg gc.OutgoingMessage) (gc.MessageID, error) {
	body := &gmail.Message{
		Raw:      base64.URLEncoding.EncodeToString(msg.Raw),
		ThreadId: string(msg.ThreadID),
	}
	sent, err := g.svc.Users.Messages.Send(me, body).Context(ctx).Do()
	if err != nil {
		return "", err
	}
	return gc.MessageID(sent.Id), nil
}

func (g *googleClient) ListLabels(ctx context.Context) ([]gc.Label, error) {
	lr, err := g.svc.Users.Labels.List(me).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	out := make([]gc.Label, 0, len(lr.Labels))
	for _, l := range lr.Labels {
		out = append(out, gc.Label{ID: gc.LabelID(l.Id), Name: l.Name})
	}
	return out, nil
}

func (g *googleClient) CreateLabel(ctx context.Context, name string) (gc.LabelID, error) {
	created, err := g.svc.Users.Labels.Create(me, &gmail.Label{
		Name:                  name,
		LabelListVisibility:   "labelShow",
		MessageListVisibility: "show",
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("create label %q: %w", name, err)
	}
	g.log.InfoContext(ctx, "created label", "name", name, "id", created.Id)
	return gc.LabelID(created.Id), nil
}

func convertPart(p *gmail.MessagePart) *gc.Part {
	out := &gc.Part{MimeType: p.MimeType}
	for _, hd := range p.Headers {
		if !strings.EqualFold(hd.Name, "Content-Type") {
			continue
		}
		if _, params, err := mime.ParseMediaType(hd.Value); err == nil {
			out.Charset = params["charset"]
		}
	}
	if p.Body != nil {
		out.Data = p.Body.Data
	}
	for _, child := range p.Parts {
		out.Parts = append(out.Parts, convertPart(child))
	}
	return out
}

func receivedAt(internalMillis int64, dateHeader string) time.Time {
	if internalMillis > 0 {
		return time.UnixMilli(internalMillis)
	}
	if t, err := mail.ParseDate(dateHeader); err == nil {
		return t
	}
	return time.Time{}
}

func toStringsL(ids []gc.LabelID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

func toLabelIDs(ids []string) []gc.LabelID {
	out := make([]gc.LabelID, len(ids))
	for i, id := range ids {
		out[i] = gc.LabelID(id)
	}
	return out
}

var _ gc.Client = (*googleClient)(nil)
