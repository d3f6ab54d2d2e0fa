package api

import (
	"github.com/google/uuid"

	"github.com/mumehta/MeetScribe/internal/tasks"
	"github.com/mumehta/MeetScribe/pkg/api"
)

func toTaskResponse(task tasks.Task) api.TaskResponse {
	res := api.TaskResponse{
		TaskID:         task.ID,
		Kind:           string(task.Kind),
		Status:         string(task.Status),
		CreatedAt:      task.CreatedAt,
		CompletedAt:    task.CompletedAt,
		ConfigSnapshot: task.ConfigSnapshot,
	}

	if task.InputRef != uuid.Nil {
		ref := task.InputRef
		res.InputRef = &ref
	}

	if task.Result != nil {
		if prep := task.Result.Preparation; prep != nil {
			info := prep.FileInfo
			res.FileInfo = &info
			res.ConvertedRef = prep.ConvertedFileRef
		}
		res.Result = task.Result.Transcription
		res.Notes = task.Result.Notes
	}

	if task.Error != nil {
		res.Error = &api.TaskError{
			Stage:   string(task.Error.Stage),
			Message: task.Error.Message,
			Time:    task.Error.Time,
		}
	}

	return res
}
