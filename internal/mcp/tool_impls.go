package mcp

import (
	"context"
	"fmt"
	"path/filepath"

	"cme/internal/editor"
	"cme/internal/envelope"
	cmeerrors "cme/internal/errors"
	"cme/internal/jobs"
	"cme/internal/patch"
)

// toolApplyEdits implements the applyEdits tool
func (s *MCPServer) toolApplyEdits(params map[string]interface{}) (*envelope.Response, error) {
	file, err := stringParam(params, "file")
	if err != nil {
		return nil, err
	}
	language := optStringParam(params, "language")

	rawEdits, ok := params["edits"].([]interface{})
	if !ok || len(rawEdits) == 0 {
		return nil, cmeerrors.New(cmeerrors.InvalidArgument, "missing or invalid 'edits' parameter", nil)
	}

	edits := make([]editor.Edit, 0, len(rawEdits))
	for i, raw := range rawEdits {
		obj, ok := raw.(map[string]interface{})
		if !ok {
			return nil, cmeerrors.New(cmeerrors.InvalidArgument,
				fmt.Sprintf("edit %d is not an object", i), nil)
		}
		target, _ := obj["target"].(string)
		action, _ := obj["action"].(string)
		code, _ := obj["code"].(string)
		edits = append(edits, editor.Edit{
			Target: target,
			Action: editor.Action(action),
			Code:   code,
		})
	}

	abs, err := s.resolvePath(file)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Executing applyEdits", map[string]interface{}{
		"file":  abs,
		"edits": len(edits),
	})

	result, err := s.editor.Apply(context.Background(), abs, language, edits)
	if err != nil {
		return nil, err
	}

	b := envelope.New().Data(result)
	switch {
	case result.Healed:
		b.Healed()
	case result.Fallback:
		b.Fallback()
	default:
		b.Validated()
	}
	if !result.Changed {
		b.WarningWithCode("no-change", "edits produced identical content; nothing was written")
	}
	return b.Build(), nil
}

// toolApplyPatch implements the applyPatch tool
func (s *MCPServer) toolApplyPatch(params map[string]interface{}) (*envelope.Response, error) {
	patchText, err := stringParam(params, "patch")
	if err != nil {
		return nil, err
	}

	root, err := filepath.Abs(s.cfg.WorkspaceRoot)
	if err != nil {
		return nil, cmeerrors.New(cmeerrors.FileIOError, "cannot resolve workspace root", err)
	}

	s.logger.Debug("Executing applyPatch", map[string]interface{}{
		"bytes": len(patchText),
	})

	result, err := patch.ApplyDiff(context.Background(), s.parser, root, []byte(patchText))
	if err != nil {
		return nil, err
	}

	b := envelope.New().Data(result)
	if s.parser != nil {
		b.Validated()
	} else {
		b.Fallback()
	}
	return b.Build(), nil
}

// toolPatchFile implements the patchFile tool, dispatching on the
// target file's extension
func (s *MCPServer) toolPatchFile(params map[string]interface{}) (*envelope.Response, error) {
	file, err := stringParam(params, "file")
	if err != nil {
		return nil, err
	}
	abs, err := s.resolvePath(file)
	if err != nil {
		return nil, err
	}

	kind := patchKind(abs)
	s.logger.Debug("Executing patchFile", map[string]interface{}{
		"file": abs,
		"kind": kind,
	})

	var result *patch.Result
	switch kind {
	case "structured":
		action, err := stringParam(params, "action")
		if err != nil {
			return nil, err
		}
		keyPath, err := stringParam(params, "keyPath")
		if err != nil {
			return nil, err
		}
		result, err = patch.Structured(abs, patch.Action(action), keyPath, params["value"])
		if err != nil {
			return nil, err
		}

	case "markdown":
		section, err := stringParam(params, "section")
		if err != nil {
			return nil, err
		}
		content := optStringParam(params, "content")
		level := intParam(params, "headingLevel", 2)
		result, err = patch.Docs(abs, section, content, level)
		if err != nil {
			return nil, err
		}

	case "env":
		action, err := stringParam(params, "action")
		if err != nil {
			return nil, err
		}
		key, err := stringParam(params, "key")
		if err != nil {
			return nil, err
		}
		value := optStringParam(params, "value")
		result, err = patch.Env(abs, patch.Action(action), key, value)
		if err != nil {
			return nil, err
		}

	default:
		return nil, cmeerrors.New(cmeerrors.UnsupportedFormat,
			fmt.Sprintf("no patcher for %s", filepath.Base(abs)), nil)
	}

	return envelope.Operational(result), nil
}

// toolRunAsync implements the runAsync tool
func (s *MCPServer) toolRunAsync(params map[string]interface{}) (*envelope.Response, error) {
	command, err := stringParam(params, "command")
	if err != nil {
		return nil, err
	}
	cwd := optStringParam(params, "cwd")
	timeoutSecs := intParam(params, "timeoutSecs", 0)

	job, err := s.jobs.Submit(command, cwd, timeoutSecs)
	if err != nil {
		return nil, err
	}

	return envelope.New().
		Data(map[string]interface{}{
			"jobId":   job.ID,
			"status":  job.Status,
			"logPath": job.LogPath,
		}).
		Validated().
		SuggestCall("checkJob", map[string]interface{}{"jobId": job.ID},
			"Poll for completion and the log tail").
		Build(), nil
}

// toolCheckJob implements the checkJob tool
func (s *MCPServer) toolCheckJob(params map[string]interface{}) (*envelope.Response, error) {
	jobID, err := stringParam(params, "jobId")
	if err != nil {
		return nil, err
	}

	res, err := s.jobs.Status(jobID)
	if err != nil {
		return nil, err
	}

	b := envelope.New().Data(res).Validated()
	if res.Status == jobs.StatusPending || res.Status == jobs.StatusRunning {
		b.SuggestCall("checkJob", map[string]interface{}{"jobId": jobID},
			fmt.Sprintf("Job is %s; poll again", res.Status))
	}
	return b.Build(), nil
}

// toolKillJob implements the killJob tool
func (s *MCPServer) toolKillJob(params map[string]interface{}) (*envelope.Response, error) {
	jobID, err := stringParam(params, "jobId")
	if err != nil {
		return nil, err
	}

	status, err := s.jobs.Kill(jobID)
	if err != nil {
		return nil, err
	}

	return envelope.New().
		Data(map[string]interface{}{
			"jobId":  jobID,
			"status": status,
		}).
		Validated().
		SuggestCall("checkJob", map[string]interface{}{"jobId": jobID},
			"Confirm the job reached a terminal state").
		Build(), nil
}

// toolListJobs implements the listJobs tool
func (s *MCPServer) toolListJobs(params map[string]interface{}) (*envelope.Response, error) {
	opts := jobs.ListOptions{
		Limit:  intParam(params, "limit", 0),
		Offset: intParam(params, "offset", 0),
	}
	if raw, ok := params["status"].([]interface{}); ok {
		for _, v := range raw {
			if sv, ok := v.(string); ok {
				opts.Status = append(opts.Status, jobs.Status(sv))
			}
		}
	}

	res, err := s.jobs.List(opts)
	if err != nil {
		return nil, err
	}

	return envelope.Operational(res), nil
}
