package dav

import (
	"context"
	"fmt"

	"github.com/emersion/go-vcard"
	"github.com/emersion/go-webdav/carddav"

	appLog "calsync/internal/log"
	"calsync/internal/model"
)

func (g *Gateway) cardDAV(endpoint string, tr model.Transport) (*carddav.Client, error) {
	c, err := carddav.NewClient(g.httpClient(tr), endpoint)
	if err != nil {
		return nil, fmt.Errorf("dav: carddav client for %s: %w", redactURL(endpoint), err)
	}
	return c, nil
}

// ListAddressBooks resolves a source into address books, the same way
// ListCalendars does for calendars. A calendar-only source yields none.
func (g *Gateway) ListAddressBooks(ctx context.Context, src model.Source) ([]model.AddressBook, error) {
	if src.IsServer() {
		c, err := g.cardDAV(src.ServerURL, src.Transport)
		if err != nil {
			return nil, err
		}
		principal, err := c.FindCurrentUserPrincipal(ctx)
		if err != nil {
			return nil, fmt.Errorf("dav: find principal on %s: %w", redactURL(src.ServerURL), err)
		}
		home, err := c.FindAddressBookHomeSet(ctx, principal)
		if err != nil {
			return nil, fmt.Errorf("dav: find address book home set on %s: %w", redactURL(src.ServerURL), err)
		}
		books, err := c.FindAddressBooks(ctx, home)
		if err != nil {
			return nil, fmt.Errorf("dav: list address books on %s: %w", redactURL(src.ServerURL), err)
		}
		out := make([]model.AddressBook, 0, len(books))
		for _, b := range books {
			out = append(out, toAddressBook(resolveURL(src.ServerURL, b.Path), b, src.Transport))
		}
		return out, nil
	}

	if src.AddressBookURL == "" {
		return nil, nil
	}

	c, err := g.cardDAV(src.AddressBookURL, src.Transport)
	if err != nil {
		return nil, err
	}
	want := pathOf(src.AddressBookURL)
	books, err := c.FindAddressBooks(ctx, want)
	if err != nil {
		return nil, fmt.Errorf("dav: propfind address book %s: %w", redactURL(src.AddressBookURL), err)
	}
	for _, b := range books {
		if samePath(b.Path, want) {
			return []model.AddressBook{toAddressBook(src.AddressBookURL, b, src.Transport)}, nil
		}
	}
	return nil, fmt.Errorf("dav: address book %s does not exist", redactURL(src.AddressBookURL))
}

func toAddressBook(u string, b carddav.AddressBook, tr model.Transport) model.AddressBook {
	return model.AddressBook{
		URL:         u,
		DisplayName: b.Name,
		Description: b.Description,
		Transport:   tr.Clone(),
	}
}

// FetchContacts returns one contact per e-mail address of every vCard in
// the book.
func (g *Gateway) FetchContacts(ctx context.Context, book model.AddressBook) ([]model.Contact, error) {
	c, err := g.cardDAV(book.URL, book.Transport)
	if err != nil {
		return nil, err
	}

	objs, err := c.QueryAddressBook(ctx, pathOf(book.URL), &carddav.AddressBookQuery{
		DataRequest: carddav.AddressDataRequest{AllProp: true},
	})
	if err != nil {
		return nil, fmt.Errorf("dav: query address book %s: %w", redactURL(book.URL), err)
	}

	out := make([]model.Contact, 0, len(objs))
	for _, o := range objs {
		out = append(out, contactsFromCard(o.Card)...)
	}
	appLog.Debug("dav contacts fetched", "address_book", redactURL(book.URL), "count", len(out))
	return out, nil
}

func contactsFromCard(card vcard.Card) []model.Contact {
	name := card.PreferredValue(vcard.FieldFormattedName)
	emails := card.Values(vcard.FieldEmail)
	out := make([]model.Contact, 0, len(emails))
	for _, e := range emails {
		if e == "" {
			continue
		}
		out = append(out, model.Contact{Name: name, Email: e})
	}
	return out
}
