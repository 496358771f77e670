package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"cloud.google.com/go/firestore"
	"github.com/ytakahashi/todo-api/internal/models"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const defaultFirestoreCollection = "todos"

// Every create contends on the counter document, so aborted transactions are
// retried well past the client default of 5.
const firestoreTxAttempts = 128

// firestoreTodo is the stored document. Firestore integers are signed.
type firestoreTodo struct {
	ID    int64  `firestore:"id"`
	Title string `firestore:"title"`
	Done  bool   `firestore:"done"`
}

func (d firestoreTodo) todo() Todo {
	return Todo{ID: uint64(d.ID), Title: d.Title, Done: d.Done}
}

type firestoreCounter struct {
	NextID int64 `firestore:"nextId"`
}

// FirestoreService stores todos as documents keyed by their decimal id. The
// id counter document is read and bumped in the same transaction that
// creates the todo.
type FirestoreService struct {
	client     *firestore.Client
	collection string
}

func NewFirestoreService(ctx context.Context, projectID, collection string) (*FirestoreService, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	if collection == "" {
		collection = defaultFirestoreCollection
	}

	return &FirestoreService{
		client:     client,
		collection: collection,
	}, nil
}

func (fs *FirestoreService) Close() error {
	return fs.client.Close()
}

func (fs *FirestoreService) todos() *firestore.CollectionRef {
	return fs.client.Collection(fs.collection)
}

func (fs *FirestoreService) counterRef() *firestore.DocumentRef {
	return fs.client.Collection(fs.collection + "_meta").Doc("counter")
}

func (fs *FirestoreService) docRef(id uint64) *firestore.DocumentRef {
	return fs.todos().Doc(strconv.FormatUint(id, 10))
}

func (fs *FirestoreService) List(ctx context.Context) ([]Todo, error) {
	iter := fs.todos().OrderBy("id", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	todos := []Todo{}
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, models.Internal(fmt.Errorf("failed to iterate todos: %w", err))
		}

		var d firestoreTodo
		if err := doc.DataTo(&d); err != nil {
			return nil, models.Internal(fmt.Errorf("failed to unmarshal todo: %w", err))
		}
		todos = append(todos, d.todo())
	}

	return todos, nil
}

func (fs *FirestoreService) Create(ctx context.Context, in models.CreateInput) (Todo, error) {
	if err := in.Validate(); err != nil {
		return Todo{}, err
	}

	var created firestoreTodo
	err := fs.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var counter firestoreCounter
		snap, err := tx.Get(fs.counterRef())
		switch {
		case status.Code(err) == codes.NotFound:
		case err != nil:
			return err
		default:
			if err := snap.DataTo(&counter); err != nil {
				return err
			}
		}

		counter.NextID++
		created = firestoreTodo{ID: counter.NextID, Title: in.Title}
		if err := tx.Set(fs.counterRef(), counter); err != nil {
			return err
		}
		return tx.Create(fs.docRef(uint64(created.ID)), created)
	}, firestore.MaxAttempts(firestoreTxAttempts))
	if err != nil {
		return Todo{}, models.Internal(fmt.Errorf("failed to create todo: %w", err))
	}

	return created.todo(), nil
}

func (fs *FirestoreService) Get(ctx context.Context, id uint64) (Todo, error) {
	if id > math.MaxInt64 {
		return Todo{}, models.ErrNotFound
	}

	snap, err := fs.docRef(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return Todo{}, models.ErrNotFound
	}
	if err != nil {
		return Todo{}, models.Internal(fmt.Errorf("failed to get todo %d: %w", id, err))
	}

	var d firestoreTodo
	if err := snap.DataTo(&d); err != nil {
		return Todo{}, models.Internal(fmt.Errorf("failed to unmarshal todo %d: %w", id, err))
	}
	return d.todo(), nil
}

func (fs *FirestoreService) Update(ctx context.Context, id uint64, in models.UpdateInput) (Todo, error) {
	if err := in.Validate(); err != nil {
		return Todo{}, err
	}
	if id > math.MaxInt64 {
		return Todo{}, models.ErrNotFound
	}

	var updated Todo
	err := fs.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(fs.docRef(id))
		if status.Code(err) == codes.NotFound {
			return models.ErrNotFound
		}
		if err != nil {
			return err
		}

		var d firestoreTodo
		if err := snap.DataTo(&d); err != nil {
			return err
		}
		todo := d.todo()
		in.Apply(&todo)

		var updates []firestore.Update
		if in.Title != nil {
			updates = append(updates, firestore.Update{Path: "title", Value: todo.Title})
		}
		if in.Done != nil {
			updates = append(updates, firestore.Update{Path: "done", Value: todo.Done})
		}
		if err := tx.Update(fs.docRef(id), updates); err != nil {
			return err
		}
		updated = todo
		return nil
	}, firestore.MaxAttempts(firestoreTxAttempts))
	if errors.Is(err, models.ErrNotFound) {
		return Todo{}, models.ErrNotFound
	}
	if err != nil {
		return Todo{}, models.Internal(fmt.Errorf("failed to update todo %d: %w", id, err))
	}

	return updated, nil
}

func (fs *FirestoreService) Delete(ctx context.Context, id uint64) error {
	if id > math.MaxInt64 {
		return models.ErrNotFound
	}

	_, err := fs.docRef(id).Delete(ctx, firestore.Exists)
	if status.Code(err) == codes.NotFound {
		return models.ErrNotFound
	}
	if err != nil {
		return models.Internal(fmt.Errorf("failed to delete todo %d: %w", id, err))
	}

	return nil
}
