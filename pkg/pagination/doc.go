// Package pagination drives incremental offset/limit loading of the gallery.
//
// A Controller owns the accumulated items for one filter and sort. Reset
// starts over; LoadMore appends the next page. Results of a load that was
// overtaken by a newer Reset are discarded, never merged.
//
// Example usage:
//
//	ctrl := pagination.NewController(service, blobs, renderer, pagination.DefaultConfig())
//	defer ctrl.Close()
//
//	state, err := ctrl.Reset(ctx, api.FilterAll, api.SortNewest)
//	for err == nil && state.Phase == pagination.PhaseLoaded {
//		state, err = ctrl.LoadMore(ctx)
//	}
//	ctrl.Wait()
//
// For every page the renderer receives placeholders in server order, then
// one Fill or FillFailed per item as image bytes arrive, in completion
// order. Image handles live in blob slots named
// "gallery/<generation>/<index>" and are released on the next Reset or on
// Close.
package pagination
