package engine

import (
	"context"

	"golang.org/x/sync/errgroup"

	"calsync/internal/model"
)

// LoadAddressBooks reloads the address books and forgets cached contacts.
func (e *Engine) LoadAddressBooks(ctx context.Context, sources []model.Source) error {
	if err := e.catalog.LoadAddressBooks(ctx, sources); err != nil {
		return err
	}
	e.mu.Lock()
	e.contacts = nil
	e.mu.Unlock()
	return nil
}

// FetchAndLoadContacts fetches the contacts of every address book and
// returns them.
func (e *Engine) FetchAndLoadContacts(ctx context.Context) ([]model.AddressBookContact, error) {
	books := e.catalog.AddressBooks()
	fetched := make([]bookContacts, len(books))

	g, gctx := errgroup.WithContext(ctx)
	for i, book := range books {
		g.Go(func() error {
			contacts, err := e.gateway.FetchContacts(gctx, book)
			if err != nil {
				return err
			}
			fetched[i] = bookContacts{addressBookURL: book.URL, contacts: contacts}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.contacts = fetched
	e.mu.Unlock()
	return e.Contacts(), nil
}

func (e *Engine) Contacts() []model.AddressBookContact {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []model.AddressBookContact
	for _, b := range e.contacts {
		for _, c := range b.contacts {
			out = append(out, model.AddressBookContact{AddressBookURL: b.addressBookURL, Contact: c})
		}
	}
	return out
}
