package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ideamans/go-sheetstore"
	"github.com/ideamans/go-sheetstore/adapters/excel"
)

const schemaYAML = `
classes:
  - name: Department
    identity: datastore
    fields:
      - name: title
  - name: Address
    embedded_only: true
    fields:
      - name: city
      - name: zip
  - name: Employee
    table: Employees
    version:
      strategy: number
    fields:
      - name: email
        primary_key: true
      - name: name
      - name: age
        type: int
      - name: active
        type: bool
      - name: joined_at
        type: date
      - name: address
        embedded: Address
      - name: department
        relation: many-to-one
        target: Department
        cascade_persist: true
`

func main() {
	schema, err := sheetstore.LoadSchema(strings.NewReader(schemaYAML))
	if err != nil {
		log.Fatalf("Failed to load schema: %v", err)
	}

	// No authentication required
	adapter, err := excel.NewFromURL("excel:file:./example_data.xlsx")
	if err != nil {
		log.Fatalf("Failed to create Excel adapter: %v", err)
	}

	// Recommended defaults for Excel
	store := sheetstore.New(adapter, schema, excel.DefaultClientConfig())
	ctx := context.Background()
	if err := store.Initialize(ctx); err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("Error closing store: %v", err)
		}
	}()

	employee, _ := schema.Class("Employee")
	department, _ := schema.Class("Department")
	address, _ := schema.Class("Address")
	session := sheetstore.NewSession(store)

	// 1. Add employees in one transaction; the departments are persisted
	// with them
	fmt.Println("Adding employees...")
	engineering := sheetstore.NewRecord(department)
	engineering.Set("title", "Engineering")
	marketing := sheetstore.NewRecord(department)
	marketing.Set("title", "Marketing")

	people := []struct {
		email, name string
		age         int
		active      bool
		city        string
		dept        *sheetstore.Record
	}{
		{"alice@example.com", "Alice Johnson", 30, true, "Tokyo", engineering},
		{"bob@example.com", "Bob Smith", 25, true, "Osaka", marketing},
		{"charlie@example.com", "Charlie Brown", 35, false, "Tokyo", engineering},
	}

	if err := store.Begin(); err != nil {
		log.Fatalf("Failed to begin: %v", err)
	}
	for i, p := range people {
		home := sheetstore.NewRecord(address)
		home.Set("city", p.city)
		e := sheetstore.NewRecord(employee)
		e.Set("email", p.email)
		e.Set("name", p.name)
		e.Set("age", p.age)
		e.Set("active", p.active)
		e.Set("joined_at", time.Now().AddDate(0, 0, -i))
		e.Set("address", home)
		e.Set("department", p.dept)
		if err := session.Persist(e); err != nil {
			store.Rollback()
			log.Fatalf("Failed to persist %s: %v", p.email, err)
		}
	}
	if err := store.Commit(ctx); err != nil {
		log.Fatalf("Failed to commit: %v", err)
	}

	// 2. Query active engineers
	fmt.Println("\nActive employees:")
	active, err := session.Query("Employee", sheetstore.Query{
		Conditions: []sheetstore.Condition{{Column: "active", Operator: "==", Value: true}},
	})
	if err != nil {
		log.Fatalf("Failed to query: %v", err)
	}
	for _, e := range active {
		fmt.Printf("  %s, %s (%s)\n", e.GetAsString("name", ""),
			e.GetRecord("department").GetAsString("title", ""),
			e.GetRecord("address").GetAsString("city", ""))
	}

	// 3. Update and delete
	bob, err := session.Find("Employee", "bob@example.com")
	if err != nil {
		log.Fatalf("Failed to find bob: %v", err)
	}
	bob.Set("age", 26)
	if err := session.Flush(); err != nil {
		log.Fatalf("Failed to update: %v", err)
	}

	charlie, err := session.Find("Employee", "charlie@example.com")
	if err != nil {
		log.Fatalf("Failed to find charlie: %v", err)
	}
	if err := session.Delete(charlie); err != nil {
		log.Fatalf("Failed to delete: %v", err)
	}

	count, err := store.ActiveRowCount(employee)
	if err != nil {
		log.Fatalf("Failed to count: %v", err)
	}
	fmt.Printf("\n%d employees remain\n", count)

	stats := store.Stats()
	fmt.Printf("inserts=%d updates=%d deletes=%d\n", stats.Inserts, stats.Updates, stats.Deletes)
}
