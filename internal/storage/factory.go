package storage

import (
	"context"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"trendmaker/internal/adapters/storage/gdrive"
	"trendmaker/internal/adapters/storage/localfs"
	"trendmaker/internal/adapters/storage/minio"
	"trendmaker/internal/adapters/storage/s3"
	"trendmaker/internal/config"
	"trendmaker/internal/pkg/errors"
)

// NewProvider builds the archive backend named by cfg.Provider. It
// returns nil, nil when archiving is off.
func NewProvider(ctx context.Context, cfg config.ArchiveConfig) (Provider, error) {
	switch cfg.Provider {
	case "":
		return nil, nil

	case "localfs":
		return localfs.New(cfg.LocalRoot), nil

	case "gdrive":
		return newGDriveProvider(ctx, cfg.GDrive)

	case "minio":
		c, err := minio.New(minio.Config{
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			UseSSL:    cfg.S3.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		if err := c.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return c, nil

	case "s3":
		return s3.New(s3.Config{
			Endpoint:     cfg.S3.Endpoint,
			Region:       cfg.S3.Region,
			AccessKey:    cfg.S3.AccessKey,
			SecretKey:    cfg.S3.SecretKey,
			Bucket:       cfg.S3.Bucket,
			UsePathStyle: cfg.S3.UsePathStyle,
		}), nil

	default:
		return nil, errors.Validation("unknown storage provider: " + cfg.Provider)
	}
}

func newGDriveProvider(ctx context.Context, cfg config.GDriveConfig) (Provider, error) {
	conf := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{drive.DriveFileScope},
	}

	tok := &oauth2.Token{RefreshToken: cfg.RefreshToken}
	httpClient := conf.Client(context.WithoutCancel(ctx), tok)

	srv, err := drive.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, errors.Wrap(err, "storage.newGDriveProvider", "failed to create drive service")
	}

	return gdrive.NewClient(srv, cfg.FolderID), nil
}
