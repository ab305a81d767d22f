package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3" // SQLite driver
)

var (
	// ErrUserExists is returned when a username or email is already taken.
	ErrUserExists = errors.New("username or email already exists")
	// ErrNotFound is returned by updates and deletes that matched no row owned by the caller.
	ErrNotFound = errors.New("not found")
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", withForeignKeys(dataSourceName))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if strings.Contains(dataSourceName, ":memory:") {
		// Every new connection to :memory: is a fresh, empty database.
		db.SetMaxOpenConns(1)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func withForeignKeys(dsn string) string {
	if strings.Contains(dsn, "_foreign_keys") || strings.Contains(dsn, "_fk=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&_foreign_keys=on"
	}
	return dsn + "?_foreign_keys=on"
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        id TEXT PRIMARY KEY, -- UUID
        username TEXT UNIQUE NOT NULL,
        email TEXT UNIQUE NOT NULL,
        password_hash TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS projects (
        id TEXT PRIMARY KEY, -- UUID
        user_id TEXT NOT NULL,
        name TEXT NOT NULL,
        description TEXT,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (user_id) REFERENCES users (id)
    );

    CREATE TABLE IF NOT EXISTS shots (
        id TEXT PRIMARY KEY, -- UUID
        project_id TEXT NOT NULL,
        scene_description TEXT NOT NULL,
        genre TEXT NOT NULL,
        mood TEXT NOT NULL,
        language TEXT NOT NULL DEFAULT 'English',
        model_name TEXT NOT NULL,
        num_shots INTEGER NOT NULL,
        shot_data TEXT NOT NULL, -- JSON array of shots
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (project_id) REFERENCES projects (id) ON DELETE CASCADE
    );

    CREATE TABLE IF NOT EXISTS shot_images (
        id TEXT PRIMARY KEY, -- UUID
        shot_set_id TEXT NOT NULL,
        shot_num INTEGER NOT NULL,
        prompt TEXT NOT NULL,
        model_name TEXT NOT NULL,
        width INTEGER NOT NULL,
        height INTEGER NOT NULL,
        conditioned BOOLEAN DEFAULT FALSE,
        image_data TEXT NOT NULL, -- base64 PNG
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (shot_set_id) REFERENCES shots (id) ON DELETE CASCADE
    );

    CREATE INDEX IF NOT EXISTS idx_projects_user ON projects (user_id);
    CREATE INDEX IF NOT EXISTS idx_shots_project ON shots (project_id);
    CREATE INDEX IF NOT EXISTS idx_shot_images_set ON shot_images (shot_set_id, shot_num);
    `
	_, err := s.db.Exec(schema)
	return err
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// User methods
func (s *SQLiteStore) CreateUser(username, email, passwordHash string) (*User, error) {
	user := &User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        strings.ToLower(email),
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	_, err := s.db.Exec("INSERT INTO users (id, username, email, password_hash, created_at) VALUES (?, ?, ?, ?, ?)",
		user.ID, user.Username, user.Email, user.PasswordHash, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return user, nil
}

func (s *SQLiteStore) GetUserByUsername(username string) (*User, error) {
	return s.queryUser("SELECT id, username, email, password_hash, created_at FROM users WHERE username = ?", username)
}

func (s *SQLiteStore) GetUserByID(id string) (*User, error) {
	return s.queryUser("SELECT id, username, email, password_hash, created_at FROM users WHERE id = ?", id)
}

func (s *SQLiteStore) queryUser(query string, arg string) (*User, error) {
	var user User
	err := s.db.QueryRow(query, arg).Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

// Project methods
func (s *SQLiteStore) CreateProject(userID, name, description string) (*Project, error) {
	project := &Project{
		ID:          uuid.NewString(),
		UserID:      userID,
		Name:        name,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	stmt, err := s.db.Prepare("INSERT INTO projects (id, user_id, name, description, created_at) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare project insert: %w", err)
	}
	defer stmt.Close()

	if _, err = stmt.Exec(project.ID, project.UserID, project.Name, project.Description, project.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to execute project insert: %w", err)
	}
	return project, nil
}

// GetProjectByID returns the project only when it is owned by userID.
func (s *SQLiteStore) GetProjectByID(projectID, userID string) (*Project, error) {
	var project Project
	var description sql.NullString
	err := s.db.QueryRow(`
        SELECT p.id, p.user_id, p.name, p.description, p.created_at,
               (SELECT COUNT(*) FROM shots s WHERE s.project_id = p.id)
        FROM projects p
        WHERE p.id = ? AND p.user_id = ?`, projectID, userID).
		Scan(&project.ID, &project.UserID, &project.Name, &description, &project.CreatedAt, &project.ShotSetCount)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	project.Description = description.String
	return &project, nil
}

func (s *SQLiteStore) GetProjectsByUserID(userID string) ([]Project, error) {
	rows, err := s.db.Query(`
        SELECT p.id, p.user_id, p.name, p.description, p.created_at, COUNT(s.id)
        FROM projects p
        LEFT JOIN shots s ON s.project_id = p.id
        WHERE p.user_id = ?
        GROUP BY p.id
        ORDER BY p.created_at DESC, p.rowid DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	projects := []Project{}
	for rows.Next() {
		var project Project
		var description sql.NullString
		if err := rows.Scan(&project.ID, &project.UserID, &project.Name, &description, &project.CreatedAt, &project.ShotSetCount); err != nil {
			return nil, fmt.Errorf("failed to scan project row: %w", err)
		}
		project.Description = description.String
		projects = append(projects, project)
	}
	return projects, rows.Err()
}

// DeleteProject removes a project together with its shot sets and their images.
func (s *SQLiteStore) DeleteProject(projectID, userID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin project delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
        DELETE FROM shot_images WHERE shot_set_id IN (
            SELECT s.id FROM shots s JOIN projects p ON p.id = s.project_id
            WHERE p.id = ? AND p.user_id = ?)`, projectID, userID); err != nil {
		return fmt.Errorf("failed to delete project images: %w", err)
	}
	if _, err := tx.Exec(`
        DELETE FROM shots WHERE project_id IN (
            SELECT id FROM projects WHERE id = ? AND user_id = ?)`, projectID, userID); err != nil {
		return fmt.Errorf("failed to delete project shot sets: %w", err)
	}
	res, err := tx.Exec("DELETE FROM projects WHERE id = ? AND user_id = ?", projectID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// ShotSet methods
func (s *SQLiteStore) CreateShotSet(set *ShotSet) error {
	shotData, err := json.Marshal(set.Shots)
	if err != nil {
		return fmt.Errorf("failed to marshal shot data: %w", err)
	}

	set.ID = uuid.NewString()
	set.CreatedAt = time.Now().UTC()

	stmt, err := s.db.Prepare(`INSERT INTO shots
        (id, project_id, scene_description, genre, mood, language, model_name, num_shots, shot_data, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare shot set insert: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(set.ID, set.ProjectID, set.SceneDescription, set.Genre, set.Mood, set.Language,
		set.ModelName, set.NumShots, string(shotData), set.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to execute shot set insert: %w", err)
	}
	return nil
}

const shotSetColumns = "s.id, s.project_id, s.scene_description, s.genre, s.mood, s.language, s.model_name, s.num_shots, s.shot_data, s.created_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanShotSet(row rowScanner) (*ShotSet, error) {
	var set ShotSet
	var shotData string
	if err := row.Scan(&set.ID, &set.ProjectID, &set.SceneDescription, &set.Genre, &set.Mood, &set.Language,
		&set.ModelName, &set.NumShots, &shotData, &set.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(shotData), &set.Shots); err != nil {
		return nil, fmt.Errorf("failed to unmarshal shot data for shot set %s: %w", set.ID, err)
	}
	if set.Shots == nil {
		set.Shots = []Shot{}
	}
	return &set, nil
}

// GetShotSetByID returns the shot set only when its project is owned by userID.
func (s *SQLiteStore) GetShotSetByID(shotSetID, userID string) (*ShotSet, error) {
	row := s.db.QueryRow(`SELECT `+shotSetColumns+`
        FROM shots s JOIN projects p ON p.id = s.project_id
        WHERE s.id = ? AND p.user_id = ?`, shotSetID, userID)
	set, err := scanShotSet(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get shot set: %w", err)
	}
	return set, nil
}

func (s *SQLiteStore) GetShotSetsByProjectID(projectID string) ([]ShotSet, error) {
	rows, err := s.db.Query(`SELECT `+shotSetColumns+`
        FROM shots s WHERE s.project_id = ?
        ORDER BY s.created_at DESC, s.rowid DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query shot sets: %w", err)
	}
	defer rows.Close()

	sets := []ShotSet{}
	for rows.Next() {
		set, err := scanShotSet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan shot set row: %w", err)
		}
		sets = append(sets, *set)
	}
	return sets, rows.Err()
}

// UpdateShotSetShots rewrites the serialized shot list of a shot set.
func (s *SQLiteStore) UpdateShotSetShots(shotSetID string, shots []Shot) error {
	shotData, err := json.Marshal(shots)
	if err != nil {
		return fmt.Errorf("failed to marshal shot data: %w", err)
	}
	res, err := s.db.Exec("UPDATE shots SET shot_data = ? WHERE id = ?", string(shotData), shotSetID)
	if err != nil {
		return fmt.Errorf("failed to update shot data: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteShotSet removes a shot set and its images.
func (s *SQLiteStore) DeleteShotSet(shotSetID, userID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin shot set delete: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
        DELETE FROM shots WHERE id = ? AND project_id IN (
            SELECT id FROM projects WHERE user_id = ?)`, shotSetID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete shot set: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	if _, err := tx.Exec("DELETE FROM shot_images WHERE shot_set_id = ?", shotSetID); err != nil {
		return fmt.Errorf("failed to delete shot set images: %w", err)
	}
	return tx.Commit()
}

// ShotImage methods
func (s *SQLiteStore) CreateShotImage(img *ShotImage) error {
	img.ID = uuid.NewString()
	img.CreatedAt = time.Now().UTC()

	stmt, err := s.db.Prepare(`INSERT INTO shot_images
        (id, shot_set_id, shot_num, prompt, model_name, width, height, conditioned, image_data, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare shot image insert: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(img.ID, img.ShotSetID, img.ShotNum, img.Prompt, img.ModelName, img.Width, img.Height,
		img.Conditioned, img.ImageData, img.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to execute shot image insert: %w", err)
	}
	return nil
}

const shotImageColumns = "i.id, i.shot_set_id, i.shot_num, i.prompt, i.model_name, i.width, i.height, i.conditioned, i.image_data, i.created_at"

func scanShotImage(row rowScanner) (*ShotImage, error) {
	var img ShotImage
	if err := row.Scan(&img.ID, &img.ShotSetID, &img.ShotNum, &img.Prompt, &img.ModelName, &img.Width, &img.Height,
		&img.Conditioned, &img.ImageData, &img.CreatedAt); err != nil {
		return nil, err
	}
	return &img, nil
}

// GetShotImages lists the images of a shot set in creation order. A shotNum of
// zero returns the images of every shot.
func (s *SQLiteStore) GetShotImages(shotSetID string, shotNum int) ([]ShotImage, error) {
	query := `SELECT ` + shotImageColumns + ` FROM shot_images i WHERE i.shot_set_id = ?`
	args := []any{shotSetID}
	if shotNum > 0 {
		query += " AND i.shot_num = ?"
		args = append(args, shotNum)
	}
	query += " ORDER BY i.shot_num ASC, i.created_at ASC, i.rowid ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query shot images: %w", err)
	}
	defer rows.Close()

	images := []ShotImage{}
	for rows.Next() {
		img, err := scanShotImage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan shot image row: %w", err)
		}
		images = append(images, *img)
	}
	return images, rows.Err()
}

// GetShotImageByID returns the image only when its project is owned by userID.
func (s *SQLiteStore) GetShotImageByID(imageID, userID string) (*ShotImage, error) {
	row := s.db.QueryRow(`SELECT `+shotImageColumns+`
        FROM shot_images i
        JOIN shots s ON s.id = i.shot_set_id
        JOIN projects p ON p.id = s.project_id
        WHERE i.id = ? AND p.user_id = ?`, imageID, userID)
	img, err := scanShotImage(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get shot image: %w", err)
	}
	return img, nil
}
