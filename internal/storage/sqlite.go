// Package storage provides the SQLite implementation of the Storage interface.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/shirahama/ronbun/internal/models"
)

// SQLiteStorage implements Storage using SQLite. Authors and keywords
// are normalized into join tables so filter options come from indexed
// lookups rather than JSON scans.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and
// initializes the schema. Parent directories are created if missing.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS papers (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		abstract TEXT,
		publication_year INTEGER,
		doi TEXT,
		url TEXT,
		conference TEXT,
		journal TEXT,
		filename TEXT,
		file_path TEXT,
		paragraph_count INTEGER DEFAULT 0,
		extra TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_papers_year ON papers(publication_year);
	CREATE INDEX IF NOT EXISTS idx_papers_created_at ON papers(created_at);

	CREATE TABLE IF NOT EXISTS authors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS paper_authors (
		paper_id TEXT NOT NULL,
		author_id INTEGER NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (paper_id, author_id),
		FOREIGN KEY (paper_id) REFERENCES papers(id) ON DELETE CASCADE,
		FOREIGN KEY (author_id) REFERENCES authors(id)
	);

	CREATE TABLE IF NOT EXISTS keywords (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		keyword TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS paper_keywords (
		paper_id TEXT NOT NULL,
		keyword_id INTEGER NOT NULL,
		PRIMARY KEY (paper_id, keyword_id),
		FOREIGN KEY (paper_id) REFERENCES papers(id) ON DELETE CASCADE,
		FOREIGN KEY (keyword_id) REFERENCES keywords(id)
	);
	`
	_, err := db.Exec(schema)
	return err
}

// CreatePaper inserts a paper with its authors and keywords.
func (s *SQLiteStorage) CreatePaper(ctx context.Context, paper *models.Paper) error {
	extraJSON, err := json.Marshal(paper.Metadata.Extra)
	if err != nil {
		return fmt.Errorf("failed to marshal extra metadata: %w", err)
	}

	now := time.Now()
	paper.CreatedAt = now
	paper.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO papers (id, title, abstract, publication_year, doi, url, conference, journal,
		                     filename, file_path, paragraph_count, extra, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		paper.ID, paper.Metadata.Title, paper.Metadata.Abstract, nullableInt(paper.Metadata.Year),
		paper.Metadata.DOI, paper.Metadata.URL, paper.Metadata.Conference, paper.Metadata.Journal,
		paper.Filename, paper.FilePath, paper.ParagraphCount, string(extraJSON),
		paper.CreatedAt, paper.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if err := replaceAuthors(ctx, tx, paper.ID, paper.Metadata.Authors); err != nil {
		return err
	}
	if err := replaceKeywords(ctx, tx, paper.ID, paper.Metadata.Keywords); err != nil {
		return err
	}
	return tx.Commit()
}

// GetPaper returns a paper by ID.
func (s *SQLiteStorage) GetPaper(ctx context.Context, id string) (*models.Paper, error) {
	paper, err := s.scanPaper(s.db.QueryRowContext(ctx,
		`SELECT id, title, abstract, publication_year, doi, url, conference, journal,
		        filename, file_path, paragraph_count, extra, created_at, updated_at
		 FROM papers WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("paper not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	if err := s.attachRelations(ctx, paper); err != nil {
		return nil, err
	}
	return paper, nil
}

// UpdatePaper replaces a paper's metadata, authors and keywords.
func (s *SQLiteStorage) UpdatePaper(ctx context.Context, paper *models.Paper) error {
	extraJSON, err := json.Marshal(paper.Metadata.Extra)
	if err != nil {
		return fmt.Errorf("failed to marshal extra metadata: %w", err)
	}
	paper.UpdatedAt = time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE papers SET title = ?, abstract = ?, publication_year = ?, doi = ?, url = ?,
		        conference = ?, journal = ?, filename = ?, file_path = ?, paragraph_count = ?,
		        extra = ?, updated_at = ?
		 WHERE id = ?`,
		paper.Metadata.Title, paper.Metadata.Abstract, nullableInt(paper.Metadata.Year),
		paper.Metadata.DOI, paper.Metadata.URL, paper.Metadata.Conference, paper.Metadata.Journal,
		paper.Filename, paper.FilePath, paper.ParagraphCount, string(extraJSON),
		paper.UpdatedAt, paper.ID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("paper not found: %s", paper.ID)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM paper_authors WHERE paper_id = ?`, paper.ID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM paper_keywords WHERE paper_id = ?`, paper.ID); err != nil {
		return err
	}
	if err := replaceAuthors(ctx, tx, paper.ID, paper.Metadata.Authors); err != nil {
		return err
	}
	if err := replaceKeywords(ctx, tx, paper.ID, paper.Metadata.Keywords); err != nil {
		return err
	}
	return tx.Commit()
}

// DeletePaper removes a paper by ID. The join tables cascade.
func (s *SQLiteStorage) DeletePaper(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM papers WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// ListPapers returns papers ordered by creation time, newest first.
func (s *SQLiteStorage) ListPapers(ctx context.Context, offset, limit int) ([]*models.Paper, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, abstract, publication_year, doi, url, conference, journal,
		        filename, file_path, paragraph_count, extra, created_at, updated_at
		 FROM papers ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var papers []*models.Paper
	for rows.Next() {
		paper, err := s.scanPaper(rows)
		if err != nil {
			return nil, err
		}
		papers = append(papers, paper)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, paper := range papers {
		if err := s.attachRelations(ctx, paper); err != nil {
			return nil, err
		}
	}
	return papers, nil
}

// CountPapers returns the number of stored papers.
func (s *SQLiteStorage) CountPapers(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM papers`).Scan(&n)
	return n, err
}

// FilterOptions returns the distinct years, authors, keywords,
// conferences and journals present in the corpus, each sorted.
func (s *SQLiteStorage) FilterOptions(ctx context.Context) (*models.FilterOptions, error) {
	opts := &models.FilterOptions{}

	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT publication_year FROM papers
		 WHERE publication_year IS NOT NULL ORDER BY publication_year DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var year int
		if err := rows.Scan(&year); err != nil {
			return nil, err
		}
		opts.Years = append(opts.Years, year)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if opts.Authors, err = s.distinctStrings(ctx,
		`SELECT name FROM authors ORDER BY name`); err != nil {
		return nil, err
	}
	if opts.Keywords, err = s.distinctStrings(ctx,
		`SELECT keyword FROM keywords ORDER BY keyword`); err != nil {
		return nil, err
	}
	if opts.Conferences, err = s.distinctStrings(ctx,
		`SELECT DISTINCT conference FROM papers WHERE conference != '' ORDER BY conference`); err != nil {
		return nil, err
	}
	if opts.Journals, err = s.distinctStrings(ctx,
		`SELECT DISTINCT journal FROM papers WHERE journal != '' ORDER BY journal`); err != nil {
		return nil, err
	}
	return opts, nil
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorage) distinctStrings(ctx context.Context, query string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStorage) scanPaper(row rowScanner) (*models.Paper, error) {
	var paper models.Paper
	var year sql.NullInt64
	var extraJSON string
	err := row.Scan(&paper.ID, &paper.Metadata.Title, &paper.Metadata.Abstract, &year,
		&paper.Metadata.DOI, &paper.Metadata.URL, &paper.Metadata.Conference, &paper.Metadata.Journal,
		&paper.Filename, &paper.FilePath, &paper.ParagraphCount, &extraJSON,
		&paper.CreatedAt, &paper.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if year.Valid {
		paper.Metadata.Year = int(year.Int64)
	}
	if extraJSON != "" && extraJSON != "null" {
		if err := json.Unmarshal([]byte(extraJSON), &paper.Metadata.Extra); err != nil {
			return nil, fmt.Errorf("failed to unmarshal extra metadata: %w", err)
		}
	}
	return &paper, nil
}

func (s *SQLiteStorage) attachRelations(ctx context.Context, paper *models.Paper) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.name FROM authors a
		 JOIN paper_authors pa ON pa.author_id = a.id
		 WHERE pa.paper_id = ? ORDER BY pa.position`, paper.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		paper.Metadata.Authors = append(paper.Metadata.Authors, name)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	kwRows, err := s.db.QueryContext(ctx,
		`SELECT k.keyword FROM keywords k
		 JOIN paper_keywords pk ON pk.keyword_id = k.id
		 WHERE pk.paper_id = ? ORDER BY k.keyword`, paper.ID)
	if err != nil {
		return err
	}
	defer kwRows.Close()
	for kwRows.Next() {
		var kw string
		if err := kwRows.Scan(&kw); err != nil {
			return err
		}
		paper.Metadata.Keywords = append(paper.Metadata.Keywords, kw)
	}
	return kwRows.Err()
}

func replaceAuthors(ctx context.Context, tx *sql.Tx, paperID string, authors []string) error {
	for i, name := range authors {
		if name == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO authors (name) VALUES (?)`, name); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO paper_authors (paper_id, author_id, position)
			 SELECT ?, id, ? FROM authors WHERE name = ?`, paperID, i, name); err != nil {
			return err
		}
	}
	return nil
}

func replaceKeywords(ctx context.Context, tx *sql.Tx, paperID string, keywords []string) error {
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO keywords (keyword) VALUES (?)`, kw); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO paper_keywords (paper_id, keyword_id)
			 SELECT ?, id FROM keywords WHERE keyword = ?`, paperID, kw); err != nil {
			return err
		}
	}
	return nil
}

func nullableInt(v int) any {
	if v == 0 {
		return nil
	}
	return v
}
