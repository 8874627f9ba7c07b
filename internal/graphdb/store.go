// Package graphdb stores tasks and retrospectives in Neo4j. Attachment is an
// (:Task)-[:ATTACHED_TO]->(:Retrospective) relationship; the retrospective
// keeps the ordered list of attached ids in its task_ids property so that
// deleted tasks stay listed.
package graphdb

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/kimhyun5u/MyPM/pkg/models"
)

type Config struct {
	URI      string
	Username string
	Password string
	Database string
}

type Store struct {
	driver   neo4j.DriverWithContext
	database string
}

// Open connects to Neo4j and verifies connectivity.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("failed to connect to neo4j: %w", err)
	}
	return &Store{driver: driver, database: cfg.Database}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *Store) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: s.database})
}

// Init creates the uniqueness constraints.
func (s *Store) Init(ctx context.Context) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	for _, stmt := range []string{
		"CREATE CONSTRAINT task_id IF NOT EXISTS FOR (t:Task) REQUIRE t.id IS UNIQUE",
		"CREATE CONSTRAINT retrospective_id IF NOT EXISTS FOR (r:Retrospective) REQUIRE r.id IS UNIQUE",
		"CREATE CONSTRAINT retrospective_date IF NOT EXISTS FOR (r:Retrospective) REQUIRE r.date IS UNIQUE",
	} {
		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			_, err := tx.Run(ctx, stmt, nil)
			return nil, err
		})
		if err != nil {
			return fmt.Errorf("failed to create constraint: %w", err)
		}
	}
	return nil
}

const taskReturn = "RETURN t.id AS id, t.title AS title, t.description AS description, " +
	"t.status AS status, t.due_date AS due_date, r.id AS retrospective_id"

func collectTasks(ctx context.Context, res neo4j.ResultWithContext) ([]models.Task, error) {
	tasks := []models.Task{}
	for res.Next(ctx) {
		tasks = append(tasks, taskFromRecord(res.Record()))
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	return tasks, nil
}

func taskFromRecord(record *neo4j.Record) models.Task {
	id, _ := record.Get("id")
	title, _ := record.Get("title")
	description, _ := record.Get("description")
	status, _ := record.Get("status")
	dueDate, _ := record.Get("due_date")
	retroID, _ := record.Get("retrospective_id")

	return models.Task{
		ID:              stringValue(id),
		Title:           stringValue(title),
		Description:     optionalString(description),
		Status:          models.TaskStatus(stringValue(status)),
		DueDate:         optionalString(dueDate),
		RetrospectiveID: optionalString(retroID),
	}
}

func (s *Store) ListTasks(ctx context.Context, status *models.TaskStatus) ([]models.Task, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	query := "MATCH (t:Task) "
	params := map[string]any{}
	if status != nil {
		query += "WHERE t.status = $status "
		params["status"] = string(*status)
	}
	query += "OPTIONAL MATCH (t)-[:ATTACHED_TO]->(r:Retrospective) " +
		taskReturn + " ORDER BY t.created_at ASC, t.id ASC"

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return collectTasks(ctx, res)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return result.([]models.Task), nil
}

func (s *Store) CreateTask(ctx context.Context, in models.TaskCreate) (*models.Task, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}

	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx,
			"CREATE (t:Task {id: $id, title: $title, description: $description, "+
				"status: $status, due_date: $due_date, created_at: timestamp()}) "+
				"WITH t OPTIONAL MATCH (t)-[:ATTACHED_TO]->(r:Retrospective) "+taskReturn,
			map[string]any{
				"id":          uuid.New().String(),
				"title":       in.Title,
				"description": nullable(in.Description),
				"status":      string(models.TaskStatusTodo),
				"due_date":    nullable(in.DueDate),
			},
		)
		if err != nil {
			return nil, err
		}
		return collectTasks(ctx, res)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	tasks := result.([]models.Task)
	if len(tasks) == 0 {
		return nil, fmt.Errorf("failed to create task: no record returned")
	}
	return &tasks[0], nil
}

func (s *Store) UpdateTask(ctx context.Context, id string, in models.TaskUpdate) (*models.Task, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}

	params := map[string]any{"id": id}
	set := ""
	add := func(field string, v *string) {
		if v == nil {
			return
		}
		if set == "" {
			set = "SET "
		} else {
			set += ", "
		}
		set += "t." + field + " = $" + field
		params[field] = *v
	}
	add("title", in.Title)
	add("description", in.Description)
	if in.Status != nil {
		add("status", models.Ptr(string(*in.Status)))
	}
	add("due_date", in.DueDate)

	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx,
			"MATCH (t:Task {id: $id}) "+set+
				" WITH t OPTIONAL MATCH (t)-[:ATTACHED_TO]->(r:Retrospective) "+taskReturn,
			params,
		)
		if err != nil {
			return nil, err
		}
		return collectTasks(ctx, res)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	tasks := result.([]models.Task)
	if len(tasks) == 0 {
		return nil, fmt.Errorf("task %s: %w", id, models.ErrNotFound)
	}
	return &tasks[0], nil
}

// DeleteTask removes the task node and its relationship. Unknown ids are
// not an error.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, "MATCH (t:Task {id: $id}) DETACH DELETE t", map[string]any{"id": id})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return nil
}

const retrospectiveReturn = "RETURN r.id AS id, r.title AS title, r.summary AS summary, " +
	"r.date AS date, coalesce(r.task_ids, []) AS task_ids"

func retrospectiveFromResult(ctx context.Context, res neo4j.ResultWithContext) (*models.Retrospective, error) {
	if !res.Next(ctx) {
		return nil, res.Err()
	}
	record := res.Record()
	id, _ := record.Get("id")
	title, _ := record.Get("title")
	summary, _ := record.Get("summary")
	date, _ := record.Get("date")
	rawTasks, _ := record.Get("task_ids")

	r := &models.Retrospective{
		ID:      stringValue(id),
		Title:   stringValue(title),
		Summary: optionalString(summary),
		Date:    stringValue(date),
		Tasks:   []string{},
	}
	if list, ok := rawTasks.([]any); ok {
		for _, v := range list {
			r.Tasks = append(r.Tasks, stringValue(v))
		}
	}
	return r, nil
}

func (s *Store) GetRetrospectiveByDate(ctx context.Context, date string) (*models.Retrospective, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, "MATCH (r:Retrospective {date: $date}) "+retrospectiveReturn,
			map[string]any{"date": date})
		if err != nil {
			return nil, err
		}
		return retrospectiveFromResult(ctx, res)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get retrospective: %w", err)
	}
	return result.(*models.Retrospective), nil
}

// SaveRetrospective merges on date: an existing retrospective keeps its id
// and attached tasks.
func (s *Store) SaveRetrospective(ctx context.Context, in models.RetrospectiveCreate) (*models.Retrospective, error) {
	in = in.Normalize()
	if in.Date == nil {
		return nil, fmt.Errorf("date: %w", models.ErrInvalidDate)
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx,
			"MERGE (r:Retrospective {date: $date}) "+
				"ON CREATE SET r.id = $id, r.task_ids = [] "+
				"SET r.title = $title, r.summary = $summary "+retrospectiveReturn,
			map[string]any{
				"id":      uuid.New().String(),
				"date":    *in.Date,
				"title":   in.Title,
				"summary": nullable(in.Summary),
			},
		)
		if err != nil {
			return nil, err
		}
		return retrospectiveFromResult(ctx, res)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save retrospective: %w", err)
	}
	return result.(*models.Retrospective), nil
}

// AttachTask moves the task's ATTACHED_TO relationship to the retrospective
// and appends the id to its list if absent.
func (s *Store) AttachTask(ctx context.Context, retrospectiveID, taskID string) (*models.Retrospective, error) {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		params := map[string]any{"rid": retrospectiveID, "tid": taskID}

		res, err := tx.Run(ctx,
			"OPTIONAL MATCH (r:Retrospective {id: $rid}) OPTIONAL MATCH (t:Task {id: $tid}) "+
				"RETURN r IS NOT NULL AS has_retro, t IS NOT NULL AS has_task", params)
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		if ok, _ := record.Get("has_retro"); ok != true {
			return nil, fmt.Errorf("retrospective %s: %w", retrospectiveID, models.ErrNotFound)
		}
		if ok, _ := record.Get("has_task"); ok != true {
			return nil, fmt.Errorf("task %s: %w", taskID, models.ErrNotFound)
		}

		if _, err := tx.Run(ctx,
			"MATCH (t:Task {id: $tid})-[a:ATTACHED_TO]->(old:Retrospective) WHERE old.id <> $rid "+
				"SET old.task_ids = [x IN coalesce(old.task_ids, []) WHERE x <> $tid] "+
				"DELETE a", params); err != nil {
			return nil, err
		}

		res, err = tx.Run(ctx,
			"MATCH (r:Retrospective {id: $rid}), (t:Task {id: $tid}) "+
				"MERGE (t)-[:ATTACHED_TO]->(r) "+
				"SET r.task_ids = CASE WHEN $tid IN coalesce(r.task_ids, []) "+
				"THEN r.task_ids ELSE coalesce(r.task_ids, []) + $tid END "+
				"WITH r "+retrospectiveReturn, params)
		if err != nil {
			return nil, err
		}
		return retrospectiveFromResult(ctx, res)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to attach task: %w", err)
	}
	return result.(*models.Retrospective), nil
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func optionalString(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return &s
}

func nullable(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
