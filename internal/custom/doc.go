// Package custom loads user-authored override fragments from the reserved
// custom directory.
//
// The directory is scanned for conventional filenames (a devcontainer
// patch, a compose fragment, an env file, and arbitrary extra files under
// files/) and the result is synthesized into one always-last,
// highest-priority overlay fragment. Feeding it through the same merge
// engine as catalog overlays, rather than special-casing it, is what
// guarantees that anything a user sets here survives every subsequent
// regeneration, as long as the file remains present.
package custom
