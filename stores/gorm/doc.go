// Package gorm provides a GORM-based implementation of the accounts store
// contract. It works against any database GORM supports (PostgreSQL, MySQL,
// SQLite) and is the adapter intended for production deployments.
//
// # Database Schema
//
// The package auto-migrates two tables:
//   - users: identity records (one of email/phone set, nullable password hash)
//   - user_tokens: hashed token records, unique per (hash, context), cascading
//     with their user
//
// # Usage
//
//	db, _ := gorm.Open(sqlite.Open("accounts.db"), &gorm.Config{})
//	gormstore.AutoMigrate(db)
//	store := gormstore.New(db)
//	svc := accounts.NewService(store, sender, providers, accounts.Config{})
package gorm
