package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ideamans/go-sheetstore"
	"github.com/ideamans/go-sheetstore/adapters/googlesheets"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ctx := context.Background()

	// Initialize Google Sheets adapter with JSON key file
	adapter, err := googlesheets.NewWithJSONKeyFile(ctx, googlesheets.Config{
		SpreadsheetID: "your-spreadsheet-id",
	}, "./service-account.json")
	if err != nil {
		return fmt.Errorf("failed to create adapter: %w", err)
	}

	user := &sheetstore.ClassMeta{
		Name:  "User",
		Table: "Users",
		Fields: []*sheetstore.FieldMeta{
			{Name: "email", Type: sheetstore.FieldString, PrimaryKey: true},
			{Name: "name", Type: sheetstore.FieldString},
			{Name: "age", Type: sheetstore.FieldInt},
			{Name: "created_at", Type: sheetstore.FieldDate},
			{Name: "login_count", Type: sheetstore.FieldInt},
		},
	}
	schema, err := sheetstore.NewSchema(user)
	if err != nil {
		return err
	}

	// Recommended defaults for Google Sheets: saves are batched by the
	// periodic sync
	store := sheetstore.New(adapter, schema, googlesheets.DefaultClientConfig())
	if err = store.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer store.Close()
	session := sheetstore.NewSession(store)

	john := sheetstore.NewRecord(user)
	john.Set("email", "john@example.com")
	john.Set("name", "John Doe")
	john.Set("age", 30)
	john.Set("created_at", time.Now())
	if err := session.Persist(john); err != nil {
		return fmt.Errorf("failed to persist user: %w", err)
	}
	row, err := store.RowOf(john)
	if err != nil {
		return err
	}
	fmt.Printf("Added user at row %d\n", row+1)

	results, err := session.Query("User", sheetstore.Query{
		Conditions: []sheetstore.Condition{
			{Column: "age", Operator: "between", Value: []any{25, 35}},
		},
		Limit: 10,
	})
	if err != nil {
		return fmt.Errorf("failed to query: %w", err)
	}

	fmt.Printf("Found %d users aged 25-35:\n", len(results))
	for _, r := range results {
		fmt.Printf("  %s (age: %d)\n", r.GetAsString("name", "Unknown"), r.GetAsInt64("age", 0))
		r.Set("login_count", r.GetAsInt64("login_count", 0)+1)
	}
	if err := session.Flush(); err != nil {
		log.Printf("Failed to update users: %v", err)
	}

	return store.Sync()
}
