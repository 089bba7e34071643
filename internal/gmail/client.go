package gmail

import "context"

// Client is the narrow Gmail surface required by mailtriage.
type Client interface {
	List(ctx context.Context, q Query, pageToken string, pageSize int) (ListPage, error)
	Get(ctx context.Context, id MessageID) (Message, error)
	ThreadSize(ctx context.Context, id ThreadID) (int, error)
	Modify(ctx context.Context, id MessageID, ops ModifyOps) error
	Send(ctx context.Context, msg OutgoingMessage) (MessageID, error)
	ListLabels(ctx context.Context) ([]Label, error)
	CreateLabel(ctx context.Context, name string) (LabelID, error)
}
