package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kimhyun5u/MyPM/internal/board"
	"github.com/kimhyun5u/MyPM/internal/service"
	"github.com/kimhyun5u/MyPM/pkg/models"
)

const statusHelp = "todo|in_progress|done|blocked"

// Services are the data services the tools read and write through, so tool
// calls share the dashboard's cache and invalidation rules.
type Services struct {
	Tasks  *service.Tasks
	Retros *service.Retrospectives
	// Now defaults the retrospective date. Defaults to time.Now.
	Now func() time.Time
}

func (s Services) today() string {
	now := s.Now
	if now == nil {
		now = time.Now
	}
	return models.Today(now())
}

// NewServer creates a new MCP server.
func NewServer(svc Services, version string) *server.MCPServer {
	s := server.NewMCPServer("MyPM", version)

	// Tasks
	s.AddTool(mcp.NewTool("list_tasks",
		mcp.WithDescription("List tasks, optionally filtered by status."),
		mcp.WithString("status", mcp.Description("Filter by status ("+statusHelp+")")),
	), listTasksHandler(svc))

	s.AddTool(mcp.NewTool("create_task",
		mcp.WithDescription("Create a task. New tasks start in todo."),
		mcp.WithString("title", mcp.Description("Task title"), mcp.Required()),
		mcp.WithString("description", mcp.Description("Task description")),
		mcp.WithString("due_date", mcp.Description("Due date (YYYY-MM-DD)")),
	), createTaskHandler(svc))

	s.AddTool(mcp.NewTool("update_task",
		mcp.WithDescription("Update fields of an existing task. Omitted fields are left unchanged."),
		mcp.WithString("id", mcp.Description("Task ID"), mcp.Required()),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("description", mcp.Description("New description")),
		mcp.WithString("due_date", mcp.Description("New due date (YYYY-MM-DD)")),
		mcp.WithString("status", mcp.Description("New status ("+statusHelp+")")),
	), updateTaskHandler(svc))

	s.AddTool(mcp.NewTool("delete_task",
		mcp.WithDescription("Delete a task."),
		mcp.WithString("id", mcp.Description("Task ID"), mcp.Required()),
	), deleteTaskHandler(svc))

	s.AddTool(mcp.NewTool("board",
		mcp.WithDescription("Get tasks grouped into status columns."),
		mcp.WithString("status", mcp.Description("Show only this status column ("+statusHelp+")")),
	), boardHandler(svc))

	// Retrospectives
	s.AddTool(mcp.NewTool("get_retrospective",
		mcp.WithDescription("Get the retrospective for a date."),
		mcp.WithString("date", mcp.Description("Date (YYYY-MM-DD, defaults to today)")),
	), getRetrospectiveHandler(svc))

	s.AddTool(mcp.NewTool("save_retrospective",
		mcp.WithDescription("Create or update the retrospective for a date."),
		mcp.WithString("title", mcp.Description("Retrospective title"), mcp.Required()),
		mcp.WithString("summary", mcp.Description("Summary of the day")),
		mcp.WithString("date", mcp.Description("Date (YYYY-MM-DD, defaults to today)")),
	), saveRetrospectiveHandler(svc))

	s.AddTool(mcp.NewTool("attach_task",
		mcp.WithDescription("Attach a task to the retrospective for a date. The retrospective must exist."),
		mcp.WithString("task_id", mcp.Description("Task ID"), mcp.Required()),
		mcp.WithString("date", mcp.Description("Date (YYYY-MM-DD, defaults to today)")),
	), attachTaskHandler(svc))

	return s
}

// Serve starts the MCP server on stdio.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// optionalString returns a pointer to the argument when the caller passed
// it, so update payloads only carry supplied fields.
func optionalString(request mcp.CallToolRequest, key string) *string {
	args, _ := request.Params.Arguments.(map[string]any)
	if v, ok := args[key].(string); ok {
		return &v
	}
	return nil
}

func parseFilter(request mcp.CallToolRequest) (models.TaskStatus, error) {
	status := mcp.ParseString(request, "status", "")
	if status == "" || status == "all" {
		return "", nil
	}
	return models.ParseTaskStatus(status)
}

func listTasksHandler(svc Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		filter, err := parseFilter(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		tasks, err := svc.Tasks.List(ctx, filter)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]any{"tasks": tasks})
	}
}

func createTaskHandler(svc Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		task, err := svc.Tasks.Create(ctx, models.TaskCreate{
			Title:       mcp.ParseString(request, "title", ""),
			Description: optionalString(request, "description"),
			DueDate:     optionalString(request, "due_date"),
		})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(task)
	}
}

func updateTaskHandler(svc Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseString(request, "id", "")

		update := models.TaskUpdate{
			Title:       optionalString(request, "title"),
			Description: optionalString(request, "description"),
			DueDate:     optionalString(request, "due_date"),
		}
		if s := optionalString(request, "status"); s != nil {
			status, err := models.ParseTaskStatus(*s)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			update.Status = &status
		}
		if update.Empty() {
			return mcp.NewToolResultError("Nothing to update"), nil
		}

		task, err := svc.Tasks.Update(ctx, id, update)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to update task '%s': %v", id, err)), nil
		}
		return jsonResult(task)
	}
}

func deleteTaskHandler(svc Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseString(request, "id", "")
		if err := svc.Tasks.Delete(ctx, id); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText("Task deleted successfully"), nil
	}
}

type boardColumn struct {
	Status models.TaskStatus `json:"status"`
	Label  string            `json:"label"`
	Count  int               `json:"count"`
	Tasks  []models.Task     `json:"tasks"`
}

func boardHandler(svc Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		filter, err := parseFilter(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		tasks, err := svc.Tasks.List(ctx, filter)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var columns []boardColumn
		for _, c := range board.Build(tasks, filter) {
			columns = append(columns, boardColumn{Status: c.Status, Label: c.Label, Count: len(c.Tasks), Tasks: c.Tasks})
		}
		return jsonResult(map[string]any{"columns": columns, "total": len(tasks)})
	}
}

func getRetrospectiveHandler(svc Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		date := mcp.ParseString(request, "date", svc.today())
		retro, err := svc.Retros.GetByDate(ctx, date)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if retro == nil {
			return mcp.NewToolResultText(fmt.Sprintf("No retrospective for %s", date)), nil
		}
		return jsonResult(retro)
	}
}

func saveRetrospectiveHandler(svc Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		retro, err := svc.Retros.CreateOrUpdate(ctx, models.RetrospectiveCreate{
			Title:   mcp.ParseString(request, "title", ""),
			Summary: optionalString(request, "summary"),
			Date:    optionalString(request, "date"),
		})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(retro)
	}
}

func attachTaskHandler(svc Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskID := mcp.ParseString(request, "task_id", "")
		date := mcp.ParseString(request, "date", svc.today())

		retro, err := svc.Retros.GetByDate(ctx, date)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if retro == nil {
			return mcp.NewToolResultError(fmt.Sprintf("No retrospective for %s", date)), nil
		}

		updated, err := svc.Retros.AttachTask(ctx, date, retro.ID, taskID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to attach task '%s': %v", taskID, err)), nil
		}
		return jsonResult(updated)
	}
}
