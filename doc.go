// Package accounts is a user-identity and session-credential core. It
// authenticates users by password or by OAuth-provider identity, issues and
// verifies opaque bearer tokens for sessions and for time-boxed actions
// (email confirmation, email change, password reset), and enforces the
// invariants that keep those tokens safe to trust.
//
// The package is a library surface: HTTP routing, template rendering and
// cookie plumbing belong to the consuming application. Three collaborators
// are consumed through narrow interfaces: a durable relational store
// (Store), an email-delivery sink (EmailSender) and OAuth providers
// (oauth.Provider).
//
// # Tokens
//
// Every token is a random 32-byte secret handed to the caller once and
// persisted only as a SHA-256 digest, scoped to a purpose (Context) with a
// purpose-specific validity window. Session tokens travel inside a signed
// envelope so they can be cheaply rejected offline, but the store check is
// always the trust decision. Flows that change a credential or a trust
// boundary invalidate the tokens they would leave stale in the same store
// transaction.
//
// # Basic Usage
//
// Wire a store, an email sink and any OAuth providers into a Service:
//
//	db, _ := gorm.Open(sqlite.Open("accounts.db"), &gorm.Config{})
//	gormstore.AutoMigrate(db)
//
//	svc := accounts.NewService(
//	    gormstore.New(db),
//	    &accounts.ConsoleEmailSender{},
//	    oauth.NewRegistry(oauth.NewGoogle("", "", "")),
//	    accounts.Config{SessionSecret: secret},
//	)
//
// Register and log in:
//
//	user, err := svc.RegisterUser(ctx, accounts.UserParams{
//	    Email:    "a@x.com",
//	    Password: "Password1234!",
//	})
//	user, err = svc.AuthenticateByPassword(ctx, "a@x.com", "Password1234!")
//	session, _, err := svc.CreateSession(ctx, user)
package accounts
