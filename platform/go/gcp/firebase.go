package gcp

import (
	"context"
	"fmt"
	"log"
	"os"

	gcsstorage "cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/folio-erp/folio/platform/go/setups"
)

// clientOptions returns credentials from FIREBASE_CONFIG when set, otherwise ADC is used.
func clientOptions() []option.ClientOption {
	path, ok := setups.CredentialsFile()
	if !ok {
		return nil
	}
	log.Printf("loading gcp credentials from [%s]", path)
	return []option.ClientOption{option.WithCredentialsFile(path)}
}

// GetApp Creates a Firebase App instance.
func GetApp(ctx context.Context) (*firebase.App, error) {
	var cfg *firebase.Config
	if project := os.Getenv(setups.DevProjectEnv); project != "" {
		cfg = &firebase.Config{ProjectID: project}
	}
	return firebase.NewApp(ctx, cfg, clientOptions()...)
}

// InitFirebaseAuth initializes the Firebase App and returns an Auth client.
func InitFirebaseAuth(ctx context.Context) (*firebase.App, *firebaseauth.Client, error) {
	firebaseApp, err := GetApp(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("error initializing firebase app [%w]", err)
	}

	fbAuth, err := firebaseApp.Auth(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("error initializing firebase auth [%w]", err)
	}

	return firebaseApp, fbAuth, nil
}

// NewStorageClient builds a GCS client with the same credentials as Firebase.
func NewStorageClient(ctx context.Context) (*gcsstorage.Client, error) {
	client, err := gcsstorage.NewClient(ctx, clientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("error initializing storage client [%w]", err)
	}
	return client, nil
}
