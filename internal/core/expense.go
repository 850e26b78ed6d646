package core

import (
	"strings"
	"unicode/utf8"
)

type (
	// ExpenseDraft is unvalidated caller input. Category may be a category
	// id or a category name.
	ExpenseDraft struct {
		Title       string
		Amount      string
		Category    string
		Date        string
		Description string
	}

	// ExpensePatch carries only the fields a caller supplied.
	ExpensePatch struct {
		Title       *string
		Amount      *string
		Category    *string
		Date        *string
		Description *string
	}

	// ValidDraft is an ExpenseDraft that passed validation.
	ValidDraft struct {
		Title       string
		Amount      Money
		CategoryRef string
		Date        Date
		Description string
	}
)

// Validate checks every required field and reports all failures at once.
// A malformed date falls back to today unless strictDates is set; a missing
// date is always rejected.
func (d ExpenseDraft) Validate(today Date, strictDates bool) (ValidDraft, error) {
	var (
		verr ValidationError
		out  ValidDraft
	)

	out.Title = strings.TrimSpace(d.Title)
	switch {
	case out.Title == "":
		verr.Add("title", "title is required")
	case utf8.RuneCountInString(out.Title) > MaxTitleLength:
		verr.Add("title", "title too long (max 200 characters)")
	}

	if strings.TrimSpace(d.Amount) == "" {
		verr.Add("amount", "amount is required")
	} else if m, err := ParseAmount(d.Amount); err != nil {
		verr.Add("amount", "amount must be a positive number")
	} else {
		out.Amount = m
	}

	out.CategoryRef = strings.TrimSpace(d.Category)
	if out.CategoryRef == "" {
		verr.Add("category", "category is required")
	}

	if strings.TrimSpace(d.Date) == "" {
		verr.Add("date", "date is required")
	} else if dt, err := ParseDate(d.Date); err == nil {
		out.Date = dt
	} else if strictDates {
		verr.Add("date", "date must be YYYY-MM-DD")
	} else {
		out.Date = today
	}

	out.Description = strings.TrimSpace(d.Description)

	if err := verr.Err(); err != nil {
		return ValidDraft{}, err
	}
	return out, nil
}

// Apply overlays the patch on an existing record, producing a full draft
// that must be validated again.
func (p ExpensePatch) Apply(e Expense) ExpenseDraft {
	d := ExpenseDraft{
		Title:       e.Title,
		Amount:      e.Amount.String(),
		Category:    e.CategoryID,
		Date:        e.Date.String(),
		Description: e.Description,
	}
	if p.Title != nil {
		d.Title = *p.Title
	}
	if p.Amount != nil {
		d.Amount = *p.Amount
	}
	if p.Category != nil {
		d.Category = *p.Category
	}
	if p.Date != nil {
		d.Date = *p.Date
	}
	if p.Description != nil {
		d.Description = *p.Description
	}
	return d
}

// Empty reports whether the patch carries no fields.
func (p ExpensePatch) Empty() bool {
	return p.Title == nil && p.Amount == nil && p.Category == nil && p.Date == nil && p.Description == nil
}
