// Package envgen generates the static import/config module that registers
// collections, items, modules, components and actions with the Smart
// Environment at plugin load time.
//
// Given an ordered list of source roots, the generator looks at five
// conventional subfolders of each root:
//
//   - collections, items, modules: direct children only, keyed by the
//     snake_case file stem (items also get a PascalCase class identifier)
//   - components: recursive, a file qualifies when it exports "render"
//   - actions: recursive, a file qualifies when it exports a function named
//     after its stem or its flattened key; optional companion exports
//     (default_settings, settings_config, display_name,
//     display_description, pre_process) are registered alongside
//
// Later roots override earlier ones. Exports are detected by a textual
// scan rather than by evaluating modules, so generation never runs plugin
// code. The rendered output is deterministic.
package envgen
