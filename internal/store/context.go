package store

import "context"

// Request-scoped storage context. Channels set these when a message
// arrives; tools read them to resolve storage. Values travel on the
// context so concurrent requests never see each other's state.

type contextKey string

const (
	ctxKeyUserID      contextKey = "user_id"
	ctxKeyWorkspaceID contextKey = "workspace_id"
	ctxKeyThreadID    contextKey = "thread_id"
	ctxKeyChannel     contextKey = "channel"
	ctxKeyChatType    contextKey = "chat_type"
)

// WithUserID returns a context carrying the canonical user id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKeyUserID, userID)
}

// UserIDFromContext returns the canonical user id, or "".
func UserIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyUserID).(string)
	return v
}

// WithWorkspaceID returns a context carrying the bound workspace id.
func WithWorkspaceID(ctx context.Context, workspaceID string) context.Context {
	return context.WithValue(ctx, ctxKeyWorkspaceID, workspaceID)
}

// WorkspaceIDFromContext returns the bound workspace id, or "".
func WorkspaceIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyWorkspaceID).(string)
	return v
}

// WithThreadID returns a context carrying the conversation thread id
// ("<channel>:<external-id>").
func WithThreadID(ctx context.Context, threadID string) context.Context {
	return context.WithValue(ctx, ctxKeyThreadID, threadID)
}

// ThreadIDFromContext returns the thread id, or "".
func ThreadIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyThreadID).(string)
	return v
}

// WithChannel returns a context carrying the originating channel name.
func WithChannel(ctx context.Context, channel string) context.Context {
	return context.WithValue(ctx, ctxKeyChannel, channel)
}

// ChannelFromContext returns the originating channel name, or "".
func ChannelFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyChannel).(string)
	return v
}

// WithChatType returns a context carrying "direct" or "group".
func WithChatType(ctx context.Context, chatType string) context.Context {
	return context.WithValue(ctx, ctxKeyChatType, chatType)
}

// ChatTypeFromContext returns the chat type, or "".
func ChatTypeFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyChatType).(string)
	return v
}
