package etl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/BartekS5/storefront-etl/pkg/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// GridFSStore keeps artifacts as GridFS files named by their path.
type GridFSStore struct {
	Client *mongo.Client
	Bucket *gridfs.Bucket
}

func NewGridFSStore(client *mongo.Client, database, bucketName string) (*GridFSStore, error) {
	opts := options.GridFSBucket()
	if bucketName != "" {
		opts.SetName(bucketName)
	}
	bucket, err := gridfs.NewBucket(client.Database(database), opts)
	if err != nil {
		return nil, fmt.Errorf("error opening GridFS bucket: %w", err)
	}
	return &GridFSStore{Client: client, Bucket: bucket}, nil
}

// Put uploads a new revision and then removes the older ones, so a reader
// always finds a complete file under path.
func (s *GridFSStore) Put(ctx context.Context, path, contentType string, data []byte) error {
	if err := s.Bucket.SetWriteDeadline(deadline(ctx, 30*time.Second)); err != nil {
		return err
	}
	uploadOpts := options.GridFSUpload().SetMetadata(bson.M{"contentType": contentType})
	id, err := s.Bucket.UploadFromStream(path, bytes.NewReader(data), uploadOpts)
	if err != nil {
		return fmt.Errorf("gridfs upload %s: %w", path, err)
	}

	cursor, err := s.Bucket.Find(bson.M{"filename": path, "_id": bson.M{"$ne": id}})
	if err != nil {
		return fmt.Errorf("gridfs list revisions of %s: %w", path, err)
	}
	var old []struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	if err := cursor.All(ctx, &old); err != nil {
		return fmt.Errorf("gridfs list revisions of %s: %w", path, err)
	}
	for _, f := range old {
		if err := s.Bucket.Delete(f.ID); err != nil && !errors.Is(err, gridfs.ErrFileNotFound) {
			logger.Warnf("Could not remove old revision %s of %s: %v", f.ID.Hex(), path, err)
		}
	}
	return nil
}

func (s *GridFSStore) Get(ctx context.Context, path string) ([]byte, error) {
	if err := s.Bucket.SetReadDeadline(deadline(ctx, 30*time.Second)); err != nil {
		return nil, err
	}
	stream, err := s.Bucket.OpenDownloadStreamByName(path)
	if err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, fmt.Errorf("gridfs %s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("gridfs download %s: %w", path, err)
	}
	defer stream.Close()
	return io.ReadAll(stream)
}

func (s *GridFSStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Client.Disconnect(ctx)
}

// deadline converts ctx into the absolute deadline GridFS expects.
func deadline(ctx context.Context, fallback time.Duration) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return time.Now().Add(fallback)
}
