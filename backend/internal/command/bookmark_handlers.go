package command

import "beatmapCollab/backend/internal/beatmap"

type createBookmarkHandler struct{ noMerge[CreateBookmark] }

func (createBookmarkHandler) Apply(ctx *Context, cmd CreateBookmark) {
	if !ctx.appliesStructural() {
		return
	}
	ctx.Beatmap.Bookmarks.Add(beatmap.Bookmark{Time: cmd.Time, Name: cmd.Name})
}

// 同一时间已有书签时忽略
func (createBookmarkHandler) CanBeIgnored(ctx *Context, cmd CreateBookmark) bool {
	_, exists := ctx.Beatmap.Bookmarks.Get(cmd.Time)
	return exists
}

func (createBookmarkHandler) CreateUndo(_ *Context, cmd CreateBookmark) Command {
	return RemoveBookmark{Time: cmd.Time}
}

type removeBookmarkHandler struct{ noMerge[RemoveBookmark] }

func (removeBookmarkHandler) Apply(ctx *Context, cmd RemoveBookmark) {
	if !ctx.appliesStructural() {
		return
	}
	ctx.Beatmap.Bookmarks.Remove(cmd.Time)
}

func (removeBookmarkHandler) CanBeIgnored(ctx *Context, cmd RemoveBookmark) bool {
	_, exists := ctx.Beatmap.Bookmarks.Get(cmd.Time)
	return !exists
}

func (removeBookmarkHandler) CreateUndo(ctx *Context, cmd RemoveBookmark) Command {
	bm, ok := ctx.Beatmap.Bookmarks.Get(cmd.Time)
	if !ok {
		return nil
	}
	return CreateBookmark{Time: bm.Time, Name: bm.Name}
}
