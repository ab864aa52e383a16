package services

import (
	"context"

	gcs "cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// InitFirebase initializes the Firebase Admin SDK.
// storageBucket may be empty when uploads stay on disk.
func InitFirebase(ctx context.Context, credPath, storageBucket string) (*firebase.App, error) {
	opt := option.WithCredentialsFile(credPath)
	var conf *firebase.Config
	if storageBucket != "" {
		conf = &firebase.Config{StorageBucket: storageBucket}
	}
	return firebase.NewApp(ctx, conf, opt)
}

// FirebaseAuth returns the auth client used to verify session cookies
func FirebaseAuth(ctx context.Context, app *firebase.App) (*auth.Client, error) {
	return app.Auth(ctx)
}

// FirebaseBucket returns the configured default storage bucket
func FirebaseBucket(ctx context.Context, app *firebase.App) (*gcs.BucketHandle, error) {
	client, err := app.Storage(ctx)
	if err != nil {
		return nil, err
	}
	return client.DefaultBucket()
}
