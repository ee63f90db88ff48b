package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rl1809/bookshop/internal/core/domain"
)

const cartsCollection = "carts"

type cartDocument struct {
	ID         string             `bson:"_id"`
	CustomerID string             `bson:"customer_id"`
	Items      []cartItemDocument `bson:"items"`
	CreatedAt  time.Time          `bson:"created_at"`
	UpdatedAt  time.Time          `bson:"updated_at"`
}

// Prices are stored as strings; decimal.Decimal has no BSON codec.
type cartItemDocument struct {
	ID        string    `bson:"id"`
	BookID    string    `bson:"book_id"`
	BookTitle string    `bson:"book_title"`
	BookPrice string    `bson:"book_price"`
	Quantity  int       `bson:"quantity"`
	AddedAt   time.Time `bson:"added_at"`
}

func ConnectMongoDB(ctx context.Context, uri, database string) (*mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(100)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client.Database(database), nil
}

type MongoCartAdapter struct {
	collection *mongo.Collection
}

func NewMongoCartAdapter(db *mongo.Database) *MongoCartAdapter {
	return &MongoCartAdapter{collection: db.Collection(cartsCollection)}
}

// CreateIndexes enforces one cart per customer.
func (m *MongoCartAdapter) CreateIndexes(ctx context.Context) error {
	_, err := m.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "customer_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func (m *MongoCartAdapter) GetByCustomerID(ctx context.Context, customerID string) (*domain.Cart, error) {
	var doc cartDocument
	err := m.collection.FindOne(ctx, bson.M{"customer_id": customerID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	return doc.toDomain()
}

func (m *MongoCartAdapter) GetOrCreate(ctx context.Context, customerID string) (*domain.Cart, error) {
	now := time.Now().UTC()
	update := bson.M{
		"$setOnInsert": bson.M{
			"_id":        uuid.NewString(),
			"items":      bson.A{},
			"created_at": now,
			"updated_at": now,
		},
	}

	_, err := m.collection.UpdateOne(ctx, bson.M{"customer_id": customerID}, update, options.Update().SetUpsert(true))
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return nil, fmt.Errorf("failed to upsert cart: %w", err)
	}
	return m.GetByCustomerID(ctx, customerID)
}

func (m *MongoCartAdapter) UpsertItem(ctx context.Context, cartID string, item domain.CartItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.AddedAt.IsZero() {
		item.AddedAt = time.Now().UTC()
	}

	// A concurrent push for the same book can land between the two updates,
	// so the increment is attempted again once.
	for attempt := 0; attempt < 2; attempt++ {
		matched, err := m.incrementItem(ctx, cartID, item.BookID, item.Quantity)
		if err != nil {
			return err
		}
		if matched {
			return nil
		}

		res, err := m.collection.UpdateOne(ctx,
			bson.M{"_id": cartID, "items.book_id": bson.M{"$ne": item.BookID}},
			bson.M{
				"$push": bson.M{"items": itemToDocument(item)},
				"$set":  bson.M{"updated_at": time.Now().UTC()},
			},
		)
		if err != nil {
			return fmt.Errorf("failed to add new item: %w", err)
		}
		if res.MatchedCount == 1 {
			return nil
		}
	}
	return domain.ErrCartNotFound
}

func (m *MongoCartAdapter) incrementItem(ctx context.Context, cartID, bookID string, quantity int) (bool, error) {
	res, err := m.collection.UpdateOne(ctx,
		bson.M{"_id": cartID, "items.book_id": bookID},
		bson.M{
			"$inc": bson.M{"items.$.quantity": quantity},
			"$set": bson.M{"updated_at": time.Now().UTC()},
		},
	)
	if err != nil {
		return false, fmt.Errorf("failed to update existing item: %w", err)
	}
	return res.MatchedCount == 1, nil
}

func (m *MongoCartAdapter) SetItemQuantity(ctx context.Context, cartID, bookID string, quantity int) error {
	res, err := m.collection.UpdateOne(ctx,
		bson.M{"_id": cartID, "items.book_id": bookID},
		bson.M{"$set": bson.M{"items.$.quantity": quantity, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("failed to update item quantity: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrItemNotFound
	}
	return nil
}

func (m *MongoCartAdapter) RemoveItem(ctx context.Context, cartID, bookID string) error {
	res, err := m.collection.UpdateOne(ctx,
		bson.M{"_id": cartID, "items.book_id": bookID},
		bson.M{
			"$pull": bson.M{"items": bson.M{"book_id": bookID}},
			"$set":  bson.M{"updated_at": time.Now().UTC()},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to remove item: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrItemNotFound
	}
	return nil
}

func (m *MongoCartAdapter) ClearItems(ctx context.Context, cartID string) error {
	res, err := m.collection.UpdateOne(ctx,
		bson.M{"_id": cartID},
		bson.M{"$set": bson.M{"items": bson.A{}, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrCartNotFound
	}
	return nil
}

func itemToDocument(item domain.CartItem) cartItemDocument {
	return cartItemDocument{
		ID:        item.ID,
		BookID:    item.BookID,
		BookTitle: item.BookTitle,
		BookPrice: item.BookPrice.String(),
		Quantity:  item.Quantity,
		AddedAt:   item.AddedAt,
	}
}

func (d cartDocument) toDomain() (*domain.Cart, error) {
	cart := &domain.Cart{
		ID:         d.ID,
		CustomerID: d.CustomerID,
		Items:      make([]domain.CartItem, 0, len(d.Items)),
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
	for _, it := range d.Items {
		price, err := decimal.NewFromString(it.BookPrice)
		if err != nil {
			return nil, fmt.Errorf("parse price of %s: %w", it.BookID, err)
		}
		cart.Items = append(cart.Items, domain.CartItem{
			ID:        it.ID,
			CartID:    d.ID,
			BookID:    it.BookID,
			BookTitle: it.BookTitle,
			BookPrice: price,
			Quantity:  it.Quantity,
			AddedAt:   it.AddedAt,
		})
	}
	return cart, nil
}
