package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/nexscholar/nexscholar/core/board"
)

type boardApi struct {
	apiBase
	svc *board.Service
}

func registerBoardAPI(g *echo.Group, jwt echo.MiddlewareFunc, base apiBase, svc *board.Service) {
	api := boardApi{apiBase: base, svc: svc}

	wg := g.Group("/workspaces", jwt)
	wg.GET("", api.listWorkspaces)
	wg.POST("", api.createWorkspace)
	wg.GET("/:id", api.retrieveWorkspace)
	wg.PUT("/:id", api.updateWorkspace)
	wg.DELETE("/:id", api.destroyWorkspace)
	wg.POST("/:id/members", api.addMember)
	wg.DELETE("/:id/members/:userId", api.removeMember)
	wg.GET("/:id/boards", api.listBoards)
	wg.POST("/:id/boards", api.createBoard)

	bg := g.Group("/boards", jwt)
	bg.GET("/:id", api.retrieveBoard)
	bg.PUT("/:id", api.updateBoard)
	bg.DELETE("/:id", api.destroyBoard)
	bg.POST("/:id/lists", api.createList)
	bg.PUT("/:id/lists/order", api.reorderLists)

	lg := g.Group("/lists", jwt)
	lg.PUT("/:id", api.renameList)
	lg.DELETE("/:id", api.destroyList)
	lg.POST("/:id/tasks", api.createTask)

	tg := g.Group("/tasks", jwt)
	tg.GET("/:id", api.retrieveTask)
	tg.PUT("/:id", api.updateTask)
	tg.DELETE("/:id", api.destroyTask)
	tg.POST("/:id/move", api.moveTask)
}

// Workspaces

func (api *boardApi) listWorkspaces(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	list, err := api.svc.ListWorkspaces(ctx.Request().Context(), actor)
	if err != nil {
		return errors.Wrap(err, "listing workspaces")
	}
	return ctx.JSON(http.StatusOK, orEmpty(list))
}

func (api *boardApi) createWorkspace(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	var data board.WorkspaceInput
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to WorkspaceInput")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	ws, err := api.svc.CreateWorkspace(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating workspace")
	}
	return ctx.JSON(http.StatusCreated, ws)
}

func (api *boardApi) retrieveWorkspace(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	ws, err := api.svc.GetWorkspace(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding workspace")
	}
	return ctx.JSON(http.StatusOK, ws)
}

func (api *boardApi) updateWorkspace(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	var data board.WorkspaceInput
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to WorkspaceInput")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	ws, err := api.svc.UpdateWorkspace(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating workspace")
	}
	return ctx.JSON(http.StatusOK, ws)
}

func (api *boardApi) destroyWorkspace(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteWorkspace(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting workspace")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *boardApi) addMember(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	var data board.Member
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Member")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	ws, err := api.svc.AddMember(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "adding member")
	}
	return ctx.JSON(http.StatusOK, ws)
}

func (api *boardApi) removeMember(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	ws, err := api.svc.RemoveMember(ctx.Request().Context(), actor, ctx.Param("id"), ctx.Param("userId"))
	if err != nil {
		return errors.Wrap(err, "removing member")
	}
	return ctx.JSON(http.StatusOK, ws)
}

// Boards

func (api *boardApi) listBoards(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	boards, err := api.svc.ListBoards(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing boards")
	}
	return ctx.JSON(http.StatusOK, orEmpty(boards))
}

func (api *boardApi) createBoard(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	var data board.BoardInput
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to BoardInput")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	b, err := api.svc.CreateBoard(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "creating board")
	}
	return ctx.JSON(http.StatusCreated, b)
}

func (api *boardApi) retrieveBoard(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	detail, err := api.svc.GetBoard(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding board")
	}
	return ctx.JSON(http.StatusOK, detail)
}

func (api *boardApi) updateBoard(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	var data board.BoardInput
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to BoardInput")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	b, err := api.svc.UpdateBoard(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating board")
	}
	return ctx.JSON(http.StatusOK, b)
}

func (api *boardApi) destroyBoard(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteBoard(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting board")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Lists

func (api *boardApi) createList(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	var data board.ListInput
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ListInput")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	l, err := api.svc.CreateList(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "creating list")
	}
	return ctx.JSON(http.StatusCreated, l)
}

func (api *boardApi) reorderLists(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	var data board.ListOrder
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ListOrder")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	lists, err := api.svc.ReorderLists(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "reordering lists")
	}
	return ctx.JSON(http.StatusOK, lists)
}

func (api *boardApi) renameList(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	var data board.ListInput
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ListInput")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	l, err := api.svc.RenameList(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "renaming list")
	}
	return ctx.JSON(http.StatusOK, l)
}

func (api *boardApi) destroyList(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteList(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting list")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Tasks

func (api *boardApi) createTask(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	var data board.TaskInput
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to TaskInput")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	task, err := api.svc.CreateTask(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "creating task")
	}
	return ctx.JSON(http.StatusCreated, task)
}

func (api *boardApi) retrieveTask(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	task, err := api.svc.GetTask(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding task")
	}
	return ctx.JSON(http.StatusOK, task)
}

func (api *boardApi) updateTask(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	var data board.TaskInput
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to TaskInput")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	task, err := api.svc.UpdateTask(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating task")
	}
	return ctx.JSON(http.StatusOK, task)
}

func (api *boardApi) destroyTask(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteTask(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting task")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *boardApi) moveTask(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	var data board.TaskMove
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to TaskMove")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	task, err := api.svc.MoveTask(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "moving task")
	}
	return ctx.JSON(http.StatusOK, task)
}
