package testutil

import "context"

func contextWithUser(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, userKey{}, email)
}

func userFromContext(ctx context.Context) string {
	email, _ := ctx.Value(userKey{}).(string)
	return email
}
