package media_test

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-sdeal/internal/media"
)

func TestPublicResolver(t *testing.T) {
	ctx := context.Background()
	r := media.PublicResolver{BaseURL: "https://cdn.sdeal.ie/"}

	got, err := r.URL(ctx, "//products/garden-room/1.jpg")
	require.NoError(t, err)
	require.Equal(t, "https://cdn.sdeal.ie/products/garden-room/1.jpg", got)

	got, err = r.URL(ctx, "https://images.example.com/a.png")
	require.NoError(t, err)
	require.Equal(t, "https://images.example.com/a.png", got)

	got, err = media.PublicResolver{}.URL(ctx, "gallery/a.jpg")
	require.NoError(t, err)
	require.Equal(t, "/gallery/a.jpg", got)
}

func TestS3PresignerBuildsSignedURL(t *testing.T) {
	ctx := context.Background()
	p, err := media.NewS3Presigner(ctx, media.S3Config{
		Bucket:          "sdeal-media",
		Endpoint:        "https://account.r2.cloudflarestorage.com",
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "secret",
		PresignTTL:      5 * time.Minute,
	})
	require.NoError(t, err)

	raw, err := p.URL(ctx, "/products/garden-room/hero.jpg")
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "account.r2.cloudflarestorage.com", u.Host)
	require.True(t, strings.HasSuffix(u.Path, "/sdeal-media/products/garden-room/hero.jpg"), u.Path)
	require.Equal(t, "300", u.Query().Get("X-Amz-Expires"))
	require.NotEmpty(t, u.Query().Get("X-Amz-Signature"))

	abs, err := p.URL(ctx, "https://elsewhere.example.com/x.jpg")
	require.NoError(t, err)
	require.Equal(t, "https://elsewhere.example.com/x.jpg", abs)
}

func TestS3PresignerRequiresCredentials(t *testing.T) {
	_, err := media.NewS3Presigner(context.Background(), media.S3Config{Bucket: "b"})
	require.Error(t, err)
}
