package common

import "context"

type ctxKey string

const adminSubjectKey ctxKey = "admin/subject"

// WithAdminSubject stores the authenticated admin session subject on ctx.
func WithAdminSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, adminSubjectKey, subject)
}

// AdminSubject extracts the admin session subject from ctx if present.
func AdminSubject(ctx context.Context) (string, bool) {
	v := ctx.Value(adminSubjectKey)
	if v == nil {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}
